package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkwon/alpharank/internal/contracts"
	"github.com/dkwon/alpharank/pkg/config"
)

const negativePE = `
function factor(data, params) {
  const pe = data.pe;
  const values = [];
  for (let i = 0; i < pe.length; i++) {
    values.push(-pe[i]);
  }
  return tbl.result(data, values);
}
`

func testSelection() contracts.SelectionSpec {
	return contracts.SelectionSpec{Selects: []contracts.Select{{
		Source: "valuation",
		Fields: []string{"pe", "pb"},
	}}}
}

func testValidator() *Validator {
	return NewValidator(config.SandboxConfig{MaxScriptSize: 65536})
}

func errorKinds(report Report) []contracts.ValidationKind {
	kinds := make([]contracts.ValidationKind, 0, len(report.Errors))
	for _, e := range report.Errors {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestValidateAcceptsNegativePE(t *testing.T) {
	report := testValidator().Validate(negativePE, testSelection())

	require.True(t, report.OK, "errors: %v", report.Errors)
	assert.Equal(t, []string{"pe"}, report.FieldsUsed)
}

func TestValidateExtractsExactFieldSet(t *testing.T) {
	code := `
function factor(data, params) {
  const spread = [];
  for (let i = 0; i < data.pe.length; i++) {
    spread.push(data["pb"][i] - data.pe[i]);
  }
  return tbl.result(data, spread);
}
`
	report := testValidator().Validate(code, testSelection())

	require.True(t, report.OK, "errors: %v", report.Errors)
	assert.Equal(t, []string{"pb", "pe"}, report.FieldsUsed)
}

func TestValidateRejectsUnknownField(t *testing.T) {
	code := `
function factor(data, params) {
  return tbl.result(data, data.momentum);
}
`
	report := testValidator().Validate(code, testSelection())

	require.False(t, report.OK)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, contracts.UnknownField, report.Errors[0].Kind)
	assert.Equal(t, "momentum", report.Errors[0].Name)
}

func TestValidateRejectsCapabilities(t *testing.T) {
	cases := []struct {
		name string
		code string
	}{
		{"require", `function factor(data, params) { const fs = require("fs"); return tbl.result(data, 0); }`},
		{"eval", `function factor(data, params) { eval("1"); return tbl.result(data, 0); }`},
		{"process", `function factor(data, params) { process.exit(1); return tbl.result(data, 0); }`},
		{"globalThis", `function factor(data, params) { globalThis.x = 1; return tbl.result(data, 0); }`},
		{"constructor escape", `function factor(data, params) { const f = tbl.constructor; return tbl.result(data, 0); }`},
		{"proto escape", `function factor(data, params) { const p = params.__proto__; return tbl.result(data, 0); }`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := testValidator().Validate(tc.code, testSelection())
			require.False(t, report.OK)
			assert.NotEmpty(t, report.Errors)
			assert.Equal(t, contracts.DisallowedIdentifier, report.Errors[0].Kind)
		})
	}
}

func TestValidateRejectsDynamicFieldAccess(t *testing.T) {
	code := `
function factor(data, params) {
  const field = "pe";
  return tbl.result(data, data[field]);
}
`
	report := testValidator().Validate(code, testSelection())

	require.False(t, report.OK)
	assert.Contains(t, errorKinds(report), contracts.DisallowedSyntax)
}

func TestValidateContract(t *testing.T) {
	t.Run("missing factor", func(t *testing.T) {
		report := testValidator().Validate(`function score(data) { return data; }`, testSelection())
		require.False(t, report.OK)
		assert.Contains(t, errorKinds(report), contracts.BadContract)
	})

	t.Run("wrong arity", func(t *testing.T) {
		report := testValidator().Validate(`function factor(data) { return data; }`, testSelection())
		require.False(t, report.OK)
		assert.Contains(t, errorKinds(report), contracts.BadContract)
	})

	t.Run("declared twice", func(t *testing.T) {
		code := `
function factor(data, params) { return tbl.result(data, 0); }
function factor(data, params) { return tbl.result(data, 1); }
`
		report := testValidator().Validate(code, testSelection())
		require.False(t, report.OK)
		assert.Contains(t, errorKinds(report), contracts.BadContract)
	})
}

func TestValidateAllowsHelpers(t *testing.T) {
	code := `
function invert(values) {
  const out = [];
  for (let i = 0; i < values.length; i++) {
    out.push(values[i] === 0 ? NaN : 1 / values[i]);
  }
  return out;
}

function factor(data, params) {
  return tbl.result(data, invert(data.pe));
}
`
	report := testValidator().Validate(code, testSelection())

	require.True(t, report.OK, "errors: %v", report.Errors)
	assert.Equal(t, []string{"pe"}, report.FieldsUsed)
}

func TestValidateRejectsUndeclaredIdentifier(t *testing.T) {
	code := `
function factor(data, params) {
  return tbl.result(data, mystery(data.pe));
}
`
	report := testValidator().Validate(code, testSelection())

	require.False(t, report.OK)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, contracts.DisallowedIdentifier, report.Errors[0].Kind)
	assert.Equal(t, "mystery", report.Errors[0].Name)
}

func TestValidateCollectsAllViolations(t *testing.T) {
	code := `
function factor(data, params) {
  eval("1");
  return tbl.result(data, data.momentum);
}
`
	report := testValidator().Validate(code, testSelection())

	require.False(t, report.OK)
	assert.Len(t, report.Errors, 2)
}

func TestValidateRejectsParseError(t *testing.T) {
	report := testValidator().Validate(`function factor(data, params) {`, testSelection())
	require.False(t, report.OK)
	assert.Contains(t, errorKinds(report), contracts.DisallowedSyntax)
}

func TestValidateRejectsOversizedScript(t *testing.T) {
	v := NewValidator(config.SandboxConfig{MaxScriptSize: 16})
	report := v.Validate(negativePE, testSelection())
	require.False(t, report.OK)
}

func TestValidateAllowsLoopControl(t *testing.T) {
	code := `
function factor(data, params) {
  const values = [];
  for (let i = 0; i < data.pe.length; i++) {
    if (data.pe[i] <= 0) {
      continue;
    }
    if (values.length >= 100) {
      break;
    }
    values.push(data.pe[i]);
  }
  return tbl.result(data, values);
}
`
	report := testValidator().Validate(code, testSelection())

	require.True(t, report.OK, "errors: %v", report.Errors)
	assert.Equal(t, []string{"pe"}, report.FieldsUsed)
}

func TestValidateArrowFunctions(t *testing.T) {
	t.Run("expression body", func(t *testing.T) {
		code := `
function factor(data, params) {
  const invert = (x) => 1 / x;
  const values = [];
  for (let i = 0; i < data.pe.length; i++) {
    values.push(invert(data.pe[i]));
  }
  return tbl.result(data, values);
}
`
		report := testValidator().Validate(code, testSelection())
		require.True(t, report.OK, "errors: %v", report.Errors)
		assert.Equal(t, []string{"pe"}, report.FieldsUsed)
	})

	t.Run("block body reads fields", func(t *testing.T) {
		code := `
function factor(data, params) {
  const spread = (i) => {
    const diff = data.pb[i] - data.pe[i];
    return diff;
  };
  const values = [];
  for (let i = 0; i < data.pe.length; i++) {
    values.push(spread(i));
  }
  return tbl.result(data, values);
}
`
		report := testValidator().Validate(code, testSelection())
		require.True(t, report.OK, "errors: %v", report.Errors)
		assert.Equal(t, []string{"pb", "pe"}, report.FieldsUsed)
	})

	t.Run("unknown field inside arrow", func(t *testing.T) {
		code := `
function factor(data, params) {
  const pick = () => data.momentum;
  return tbl.result(data, pick());
}
`
		report := testValidator().Validate(code, testSelection())
		require.False(t, report.OK)
		require.Len(t, report.Errors, 1)
		assert.Equal(t, contracts.UnknownField, report.Errors[0].Kind)
		assert.Equal(t, "momentum", report.Errors[0].Name)
	})

	t.Run("undeclared identifier inside arrow", func(t *testing.T) {
		code := `
function factor(data, params) {
  const leak = (x) => mystery(x);
  return tbl.result(data, leak(data.pe));
}
`
		report := testValidator().Validate(code, testSelection())
		require.False(t, report.OK)
		require.Len(t, report.Errors, 1)
		assert.Equal(t, contracts.DisallowedIdentifier, report.Errors[0].Kind)
		assert.Equal(t, "mystery", report.Errors[0].Name)
	})

	t.Run("async arrow", func(t *testing.T) {
		code := `
function factor(data, params) {
  const later = async (x) => x;
  return tbl.result(data, later(1));
}
`
		report := testValidator().Validate(code, testSelection())
		require.False(t, report.OK)
		assert.Contains(t, errorKinds(report), contracts.DisallowedSyntax)
	})
}

func TestValidateRejectsTopLevelSideEffects(t *testing.T) {
	code := `
tbl.result([], 0);
function factor(data, params) { return tbl.result(data, 0); }
`
	report := testValidator().Validate(code, testSelection())
	require.False(t, report.OK)
	assert.Contains(t, errorKinds(report), contracts.DisallowedSyntax)
}
