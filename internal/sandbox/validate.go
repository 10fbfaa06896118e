package sandbox

import (
	"fmt"
	"sort"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"

	"github.com/dkwon/alpharank/internal/contracts"
	"github.com/dkwon/alpharank/pkg/config"
)

// FactorFunc is the entry point every factor script must declare.
const FactorFunc = "factor"

// hostLibs are the only free identifiers factor code may reference,
// besides the value literals below.
var hostLibs = map[string]bool{
	"tbl": true,
	"num": true,
}

var valueLiterals = map[string]bool{
	"undefined": true,
	"NaN":       true,
	"Infinity":  true,
}

// deniedMembers block property paths that reach host capabilities or
// break out of the sandbox object graph.
var deniedMembers = map[string]bool{
	"constructor": true,
	"__proto__":   true,
	"prototype":   true,
	"eval":        true,
	"require":     true,
	"import":      true,
	"process":     true,
	"globalThis":  true,
	"Function":    true,
}

// Report is the full outcome of static validation. OK is true only when
// Errors is empty; a script is never partially valid.
type Report struct {
	OK         bool                         `json:"ok"`
	FieldsUsed []string                     `json:"fields_used"`
	Errors     []*contracts.ValidationError `json:"errors,omitempty"`
}

// Validator performs static safety analysis of factor code. It is
// stateless and safe for concurrent use.
type Validator struct {
	maxScriptSize int
}

// NewValidator creates a validator with the configured script size cap.
func NewValidator(cfg config.SandboxConfig) *Validator {
	return &Validator{maxScriptSize: cfg.MaxScriptSize}
}

// Validate parses code and walks the syntax tree. It checks the
// factor(data, params) contract, rejects every construct outside the
// allow-list, and extracts the exact set of data fields the script
// reads. All violations are reported together.
func (v *Validator) Validate(code string, selection contracts.SelectionSpec) Report {
	w := &walker{
		selection: selection,
		fields:    make(map[string]bool),
	}

	if v.maxScriptSize > 0 && len(code) > v.maxScriptSize {
		w.addError(contracts.DisallowedSyntax, "",
			fmt.Sprintf("script exceeds maximum size of %d bytes", v.maxScriptSize))
		return w.report()
	}

	program, err := parser.ParseFile(nil, "factor.js", code, 0)
	if err != nil {
		w.addError(contracts.DisallowedSyntax, "", fmt.Sprintf("parse error: %v", err))
		return w.report()
	}

	factorDecls := 0
	topLevel := map[string]bool{}

	// Hoist top-level function names so helpers may call each other.
	for _, stmt := range program.Body {
		decl, ok := stmt.(*ast.FunctionDeclaration)
		if !ok || decl.Function.Name == nil {
			continue
		}
		name := decl.Function.Name.Name.String()
		topLevel[name] = true
		if name != FactorFunc {
			continue
		}
		factorDecls++
		params := decl.Function.ParameterList.List
		if len(params) != 2 || decl.Function.ParameterList.Rest != nil {
			w.addError(contracts.BadContract, FactorFunc,
				"factor must take exactly two parameters (data, params)")
			continue
		}
		if id, ok := params[0].Target.(*ast.Identifier); ok {
			w.dataName = id.Name.String()
		}
	}

	if factorDecls == 0 {
		w.addError(contracts.BadContract, FactorFunc,
			"script must declare function factor(data, params)")
	} else if factorDecls > 1 {
		w.addError(contracts.BadContract, FactorFunc,
			"script declares factor more than once")
	}

	w.push(topLevel)
	for _, stmt := range program.Body {
		switch stmt.(type) {
		case *ast.FunctionDeclaration, *ast.VariableStatement, *ast.LexicalDeclaration:
			w.walkStmt(stmt)
		default:
			w.addError(contracts.DisallowedSyntax, "",
				fmt.Sprintf("top-level %T is not allowed; only declarations", stmt))
		}
	}
	w.pop()

	return w.report()
}

// walker carries the scope stack and accumulated findings of one pass.
type walker struct {
	selection contracts.SelectionSpec
	dataName  string // first parameter of factor, "" until seen

	scopes []map[string]bool
	fields map[string]bool
	errs   []*contracts.ValidationError
}

func (w *walker) report() Report {
	fields := make([]string, 0, len(w.fields))
	for f := range w.fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return Report{
		OK:         len(w.errs) == 0,
		FieldsUsed: fields,
		Errors:     w.errs,
	}
}

func (w *walker) addError(kind contracts.ValidationKind, name, msg string) {
	w.errs = append(w.errs, &contracts.ValidationError{Kind: kind, Name: name, Msg: msg})
}

func (w *walker) push(names map[string]bool) {
	if names == nil {
		names = map[string]bool{}
	}
	w.scopes = append(w.scopes, names)
}

func (w *walker) pop() {
	w.scopes = w.scopes[:len(w.scopes)-1]
}

func (w *walker) declare(name string) {
	w.scopes[len(w.scopes)-1][name] = true
}

func (w *walker) resolved(name string) bool {
	for i := len(w.scopes) - 1; i >= 0; i-- {
		if w.scopes[i][name] {
			return true
		}
	}
	return false
}

// isData reports whether an expression is a direct reference to the
// factor data parameter.
func (w *walker) isData(e ast.Expression) bool {
	id, ok := e.(*ast.Identifier)
	return ok && w.dataName != "" && id.Name.String() == w.dataName
}

func (w *walker) declareBinding(b *ast.Binding) {
	if id, ok := b.Target.(*ast.Identifier); ok {
		w.declare(id.Name.String())
	} else {
		w.addError(contracts.DisallowedSyntax, "",
			fmt.Sprintf("destructuring binding %T is not allowed", b.Target))
	}
	if b.Initializer != nil {
		w.walkExpr(b.Initializer)
	}
}

func (w *walker) walkFunction(params *ast.ParameterList, body *ast.BlockStatement) {
	w.push(nil)
	defer w.pop()
	for _, p := range params.List {
		if id, ok := p.Target.(*ast.Identifier); ok {
			w.declare(id.Name.String())
		} else {
			w.addError(contracts.DisallowedSyntax, "",
				fmt.Sprintf("destructuring parameter %T is not allowed", p.Target))
		}
		if p.Initializer != nil {
			w.walkExpr(p.Initializer)
		}
	}
	if params.Rest != nil {
		w.addError(contracts.DisallowedSyntax, "", "rest parameters are not allowed")
	}
	for _, stmt := range body.List {
		w.walkStmt(stmt)
	}
}

func (w *walker) walkStmt(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.ExpressionStatement:
		w.walkExpr(s.Expression)

	case *ast.VariableStatement:
		for _, b := range s.List {
			w.declareBinding(b)
		}

	case *ast.LexicalDeclaration:
		for _, b := range s.List {
			w.declareBinding(b)
		}

	case *ast.FunctionDeclaration:
		if s.Function.Name != nil {
			w.declare(s.Function.Name.Name.String())
		}
		w.walkFunction(s.Function.ParameterList, s.Function.Body)

	case *ast.ReturnStatement:
		if s.Argument != nil {
			w.walkExpr(s.Argument)
		}

	case *ast.IfStatement:
		w.walkExpr(s.Test)
		w.walkStmt(s.Consequent)
		if s.Alternate != nil {
			w.walkStmt(s.Alternate)
		}

	case *ast.BlockStatement:
		w.push(nil)
		for _, st := range s.List {
			w.walkStmt(st)
		}
		w.pop()

	case *ast.ForStatement:
		w.push(nil)
		if s.Initializer != nil {
			w.walkForInit(s.Initializer)
		}
		if s.Test != nil {
			w.walkExpr(s.Test)
		}
		if s.Update != nil {
			w.walkExpr(s.Update)
		}
		w.walkStmt(s.Body)
		w.pop()

	case *ast.ForOfStatement:
		w.push(nil)
		w.walkForInto(s.Into)
		w.walkExpr(s.Source)
		w.walkStmt(s.Body)
		w.pop()

	case *ast.ForInStatement:
		w.push(nil)
		w.walkForInto(s.Into)
		w.walkExpr(s.Source)
		w.walkStmt(s.Body)
		w.pop()

	case *ast.WhileStatement:
		w.walkExpr(s.Test)
		w.walkStmt(s.Body)

	case *ast.DoWhileStatement:
		w.walkStmt(s.Body)
		w.walkExpr(s.Test)

	case *ast.SwitchStatement:
		w.walkExpr(s.Discriminant)
		for _, c := range s.Body {
			if c.Test != nil {
				w.walkExpr(c.Test)
			}
			for _, st := range c.Consequent {
				w.walkStmt(st)
			}
		}

	case *ast.ThrowStatement:
		w.walkExpr(s.Argument)

	case *ast.BranchStatement, *ast.EmptyStatement:
		// break and continue

	default:
		w.addError(contracts.DisallowedSyntax, "",
			fmt.Sprintf("statement %T is not allowed", stmt))
	}
}

func (w *walker) walkForInit(init ast.ForLoopInitializer) {
	switch i := init.(type) {
	case *ast.ForLoopInitializerExpression:
		w.walkExpr(i.Expression)
	case *ast.ForLoopInitializerVarDeclList:
		for _, b := range i.List {
			w.declareBinding(b)
		}
	case *ast.ForLoopInitializerLexicalDecl:
		for _, b := range i.LexicalDeclaration.List {
			w.declareBinding(b)
		}
	default:
		w.addError(contracts.DisallowedSyntax, "",
			fmt.Sprintf("loop initializer %T is not allowed", init))
	}
}

func (w *walker) walkForInto(into ast.ForInto) {
	switch i := into.(type) {
	case *ast.ForIntoVar:
		w.declareBinding(i.Binding)
	case *ast.ForDeclaration:
		if id, ok := i.Target.(*ast.Identifier); ok {
			w.declare(id.Name.String())
		} else {
			w.addError(contracts.DisallowedSyntax, "",
				fmt.Sprintf("destructuring loop target %T is not allowed", i.Target))
		}
	case *ast.ForIntoExpression:
		w.walkExpr(i.Expression)
	default:
		w.addError(contracts.DisallowedSyntax, "",
			fmt.Sprintf("loop target %T is not allowed", into))
	}
}

func (w *walker) walkExpr(expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.Identifier:
		name := e.Name.String()
		if w.resolved(name) || hostLibs[name] || valueLiterals[name] {
			return
		}
		w.addError(contracts.DisallowedIdentifier, name,
			"identifier is neither declared nor an allowed library")

	case *ast.NumberLiteral, *ast.StringLiteral, *ast.BooleanLiteral, *ast.NullLiteral:

	case *ast.TemplateLiteral:
		if e.Tag != nil {
			w.addError(contracts.DisallowedSyntax, "", "tagged templates are not allowed")
		}
		for _, sub := range e.Expressions {
			w.walkExpr(sub)
		}

	case *ast.ArrayLiteral:
		for _, el := range e.Value {
			if el != nil {
				w.walkExpr(el)
			}
		}

	case *ast.ObjectLiteral:
		for _, prop := range e.Value {
			w.walkProperty(prop)
		}

	case *ast.DotExpression:
		w.walkMember(e.Left, e.Identifier.Name.String())

	case *ast.BracketExpression:
		if lit, ok := e.Member.(*ast.StringLiteral); ok {
			w.walkMember(e.Left, lit.Value.String())
			return
		}
		if w.isData(e.Left) {
			w.addError(contracts.DisallowedSyntax, w.dataName,
				"dynamic field access on the data parameter is not allowed")
			return
		}
		w.walkExpr(e.Left)
		w.walkExpr(e.Member)

	case *ast.CallExpression:
		w.walkExpr(e.Callee)
		for _, arg := range e.ArgumentList {
			w.walkExpr(arg)
		}

	case *ast.BinaryExpression:
		w.walkExpr(e.Left)
		w.walkExpr(e.Right)

	case *ast.UnaryExpression:
		w.walkExpr(e.Operand)

	case *ast.AssignExpression:
		w.walkExpr(e.Left)
		w.walkExpr(e.Right)

	case *ast.ConditionalExpression:
		w.walkExpr(e.Test)
		w.walkExpr(e.Consequent)
		w.walkExpr(e.Alternate)

	case *ast.SequenceExpression:
		for _, sub := range e.Sequence {
			w.walkExpr(sub)
		}

	case *ast.FunctionLiteral:
		if e.Name != nil {
			w.declare(e.Name.Name.String())
		}
		w.walkFunction(e.ParameterList, e.Body)

	case *ast.ArrowFunctionLiteral:
		w.walkArrow(e)

	default:
		w.addError(contracts.DisallowedSyntax, "",
			fmt.Sprintf("expression %T is not allowed", expr))
	}
}

// walkArrow analyzes an arrow function: its own scope, its parameters,
// and either a block or a single-expression body.
func (w *walker) walkArrow(fn *ast.ArrowFunctionLiteral) {
	if fn.Async {
		w.addError(contracts.DisallowedSyntax, "", "async functions are not allowed")
		return
	}

	w.push(nil)
	defer w.pop()

	for _, p := range fn.ParameterList.List {
		if id, ok := p.Target.(*ast.Identifier); ok {
			w.declare(id.Name.String())
		} else {
			w.addError(contracts.DisallowedSyntax, "",
				fmt.Sprintf("destructuring parameter %T is not allowed", p.Target))
		}
		if p.Initializer != nil {
			w.walkExpr(p.Initializer)
		}
	}
	if fn.ParameterList.Rest != nil {
		w.addError(contracts.DisallowedSyntax, "", "rest parameters are not allowed")
	}

	switch body := fn.Body.(type) {
	case *ast.BlockStatement:
		for _, stmt := range body.List {
			w.walkStmt(stmt)
		}
	case *ast.ExpressionBody:
		w.walkExpr(body.Expression)
	default:
		w.addError(contracts.DisallowedSyntax, "",
			fmt.Sprintf("arrow body %T is not allowed", fn.Body))
	}
}

// walkMember handles one property access. Access on the data parameter
// is a field read and must resolve against the selection; everywhere
// else only the capability deny-list applies.
func (w *walker) walkMember(base ast.Expression, member string) {
	if deniedMembers[member] {
		w.addError(contracts.DisallowedIdentifier, member,
			"property reaches a capability outside the sandbox")
		return
	}

	if w.isData(base) {
		// Join keys travel with every selection.
		if member == contracts.KeyCode || member == contracts.KeyDate {
			return
		}
		if !w.selection.HasField(member) {
			w.addError(contracts.UnknownField, member,
				"field is not part of the factor selection")
			return
		}
		w.fields[member] = true
		return
	}

	w.walkExpr(base)
}

func (w *walker) walkProperty(prop ast.Property) {
	switch p := prop.(type) {
	case *ast.PropertyKeyed:
		if p.Computed {
			w.addError(contracts.DisallowedSyntax, "", "computed object keys are not allowed")
			return
		}
		w.walkExpr(p.Value)
	case *ast.PropertyShort:
		name := p.Name.Name.String()
		if !w.resolved(name) && !hostLibs[name] && !valueLiterals[name] {
			w.addError(contracts.DisallowedIdentifier, name,
				"identifier is neither declared nor an allowed library")
		}
		if p.Initializer != nil {
			w.walkExpr(p.Initializer)
		}
	default:
		w.addError(contracts.DisallowedSyntax, "",
			fmt.Sprintf("object property %T is not allowed", prop))
	}
}
