package validation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/usersvc/internal/domain"
)

func decode(t *testing.T, body string) domain.UserInput {
	t.Helper()
	var in domain.UserInput
	require.NoError(t, json.Unmarshal([]byte(body), &in))
	return in
}

func fields(issues []domain.ValidationIssue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Field+":"+string(i.Category))
	}
	return out
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"valid", `{"name":"Ann","email":"ann@example.com","age":30}`, []string{}},
		{"empty object", `{}`, []string{"name:missing", "email:missing", "age:missing"}},
		{"blank name", `{"name":"   ","email":"ann@example.com","age":30}`, []string{"name:missing"}},
		{"null name", `{"name":null,"email":"ann@example.com","age":30}`, []string{"name:missing"}},
		{"numeric name", `{"name":42,"email":"ann@example.com","age":30}`, []string{"name:invalid"}},
		{"email without dot", `{"name":"Ann","email":"ann@example","age":30}`, []string{"email:invalid"}},
		{"email with space", `{"name":"Ann","email":"a nn@example.com","age":30}`, []string{"email:invalid"}},
		{"email non ascii", `{"name":"Ann","email":"änn@example.com","age":30}`, []string{"email:invalid"}},
		{"age zero", `{"name":"Ann","email":"ann@example.com","age":0}`, []string{"age:invalid"}},
		{"age lower bound", `{"name":"Ann","email":"ann@example.com","age":1}`, []string{}},
		{"age upper bound", `{"name":"Ann","email":"ann@example.com","age":120}`, []string{}},
		{"age too high", `{"name":"Ann","email":"ann@example.com","age":121}`, []string{"age:invalid"}},
		{"age fraction", `{"name":"Ann","email":"ann@example.com","age":25.5}`, []string{"age:invalid"}},
		{"age string", `{"name":"Ann","email":"ann@example.com","age":"abc"}`, []string{"age:invalid"}},
		{"all invalid keeps order", `{"name":"","email":"nope","age":-1}`, []string{"name:missing", "email:invalid", "age:invalid"}},
		{"short password", `{"name":"Ann","email":"ann@example.com","age":30,"password":"short"}`, []string{"password:invalid"}},
		{"password at byte limit", `{"name":"Ann","email":"ann@example.com","age":30,"password":"` + strings.Repeat("p", 72) + `"}`, []string{}},
		{"password over byte limit", `{"name":"Ann","email":"ann@example.com","age":30,"password":"` + strings.Repeat("p", 73) + `"}`, []string{"password:invalid"}},
		{"multibyte password over byte limit", `{"name":"Ann","email":"ann@example.com","age":30,"password":"` + strings.Repeat("é", 40) + `"}`, []string{"password:invalid"}},
		{"unknown role", `{"name":"Ann","email":"ann@example.com","age":30,"role":"root"}`, []string{"role:invalid"}},
		{"auth fields after age", `{"age":500,"role":"x"}`, []string{"name:missing", "email:missing", "age:invalid", "role:invalid"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fields(Validate(decode(t, tt.body))))
		})
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	in := decode(t, `{"name":"","email":"bad","age":"x"}`)
	first := Validate(in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Validate(in))
	}
}

func TestParseNormalizes(t *testing.T) {
	patch, issues := Parse(decode(t, `{"name":"  Ann Lee ","email":" Ann@Example.COM","age":44,"role":"Admin","password":"longenough"}`))
	require.Empty(t, issues)
	require.NotNil(t, patch.Name)
	require.NotNil(t, patch.Email)
	require.NotNil(t, patch.Age)
	require.NotNil(t, patch.Role)
	require.NotNil(t, patch.Password)

	assert.Equal(t, "Ann Lee", *patch.Name)
	assert.Equal(t, "ann@example.com", *patch.Email)
	assert.Equal(t, 44, *patch.Age)
	assert.Equal(t, "admin", *patch.Role)
	assert.Equal(t, "longenough", *patch.Password)
}

func TestParseNullRoleOnCreate(t *testing.T) {
	patch, issues := Parse(decode(t, `{"name":"Ann","email":"ann@example.com","age":30,"role":null}`))
	require.Empty(t, issues)
	assert.Nil(t, patch.Role)
}

func TestParsePatch(t *testing.T) {
	t.Run("absent fields are kept", func(t *testing.T) {
		patch, issues := ParsePatch(decode(t, `{"age":31}`))
		require.Empty(t, issues)
		assert.Nil(t, patch.Name)
		assert.Nil(t, patch.Email)
		require.NotNil(t, patch.Age)
		assert.Equal(t, 31, *patch.Age)
	})

	t.Run("empty body changes nothing", func(t *testing.T) {
		patch, issues := ParsePatch(decode(t, `{}`))
		require.Empty(t, issues)
		assert.True(t, patch.Empty())
	})

	t.Run("null on required field is missing", func(t *testing.T) {
		issues := ValidatePatch(decode(t, `{"name":null,"age":null}`))
		assert.Equal(t, []string{"name:missing", "age:missing"}, fields(issues))
	})

	t.Run("falsy age is validated", func(t *testing.T) {
		issues := ValidatePatch(decode(t, `{"age":0}`))
		assert.Equal(t, []string{"age:invalid"}, fields(issues))
	})

	t.Run("null role clears", func(t *testing.T) {
		patch, issues := ParsePatch(decode(t, `{"role":null}`))
		require.Empty(t, issues)
		require.NotNil(t, patch.Role)
		assert.Equal(t, "", *patch.Role)
	})

	t.Run("invalid email reported", func(t *testing.T) {
		issues := ValidatePatch(decode(t, `{"email":"x@y"}`))
		assert.Equal(t, []string{"email:invalid"}, fields(issues))
	})
}

func TestValidateWithBuiltFields(t *testing.T) {
	in := domain.UserInput{
		Name:  domain.StringField("Bo"),
		Email: domain.StringField("bo@example.org"),
		Age:   domain.IntField(9),
	}
	assert.Empty(t, Validate(in))

	in.Age = domain.NullField()
	assert.Equal(t, []string{"age:missing"}, fields(Validate(in)))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@b.co", NormalizeEmail("  A@B.Co "))
}
