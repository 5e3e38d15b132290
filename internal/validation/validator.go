// Package validation checks user-supplied records field by field.
//
// Every rule runs independently so a caller sees all problems at once, and
// issues are always reported in the order name, email, age, followed by the
// optional auth-owned fields.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/aryan0dhankhar/usersvc/internal/domain"
)

const (
	MinAge            = 1
	MaxAge            = 120
	MinPasswordLength = 8
	// MaxPasswordLength is in bytes; bcrypt refuses longer input
	MaxPasswordLength = 72
)

// Roles accepted for the optional role field
var Roles = map[string]struct{}{
	"user":  {},
	"admin": {},
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validate checks a record submitted for creation.
func Validate(in domain.UserInput) []domain.ValidationIssue {
	_, issues := Parse(in)
	return issues
}

// ValidatePatch checks a partial update. Absent fields are skipped.
func ValidatePatch(in domain.UserInput) []domain.ValidationIssue {
	_, issues := ParsePatch(in)
	return issues
}

// Parse validates a record for creation and returns its normalized fields.
// The patch is only meaningful when no issues are returned.
func Parse(in domain.UserInput) (domain.UserPatch, []domain.ValidationIssue) {
	return parse(in, false)
}

// ParsePatch validates a partial update and returns the fields to merge.
func ParsePatch(in domain.UserInput) (domain.UserPatch, []domain.ValidationIssue) {
	return parse(in, true)
}

func parse(in domain.UserInput, partial bool) (domain.UserPatch, []domain.ValidationIssue) {
	var (
		patch  domain.UserPatch
		issues []domain.ValidationIssue
	)

	// A partial update only looks at members that were sent.
	required := func(f domain.Field) bool { return !partial || f.Present }

	if required(in.Name) {
		name, issue := parseName(in.Name)
		if issue != nil {
			issues = append(issues, *issue)
		} else {
			patch.Name = &name
		}
	}

	if required(in.Email) {
		email, issue := parseEmail(in.Email)
		if issue != nil {
			issues = append(issues, *issue)
		} else {
			patch.Email = &email
		}
	}

	if required(in.Age) {
		age, issue := parseAge(in.Age)
		if issue != nil {
			issues = append(issues, *issue)
		} else {
			patch.Age = &age
		}
	}

	if in.Password.Present && !in.Password.IsNull() {
		password, issue := parsePassword(in.Password)
		if issue != nil {
			issues = append(issues, *issue)
		} else {
			patch.Password = &password
		}
	}

	if in.Role.Present {
		role, issue := parseRole(in.Role)
		if issue != nil {
			issues = append(issues, *issue)
		} else if partial || role != "" {
			patch.Role = &role
		}
	}

	return patch, issues
}

func parseName(f domain.Field) (string, *domain.ValidationIssue) {
	if f.Missing() {
		return "", missing("name")
	}
	name, ok := f.Text()
	if !ok {
		return "", invalid("name", "name must be a string")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", missing("name")
	}
	return name, nil
}

func parseEmail(f domain.Field) (string, *domain.ValidationIssue) {
	if f.Missing() {
		return "", missing("email")
	}
	email, ok := f.Text()
	if !ok {
		return "", invalid("email", "email must be a string")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return "", missing("email")
	}
	if !isASCII(email) || !emailPattern.MatchString(email) {
		return "", invalid("email", "email must be a valid address")
	}
	return NormalizeEmail(email), nil
}

func parseAge(f domain.Field) (int, *domain.ValidationIssue) {
	if f.Missing() {
		return 0, missing("age")
	}
	age, ok := f.Int()
	if !ok {
		return 0, invalid("age", "age must be an integer")
	}
	if age < MinAge || age > MaxAge {
		return 0, invalid("age", fmt.Sprintf("age must be between %d and %d", MinAge, MaxAge))
	}
	return age, nil
}

func parsePassword(f domain.Field) (string, *domain.ValidationIssue) {
	password, ok := f.Text()
	if !ok {
		return "", invalid("password", "password must be a string")
	}
	if len(password) < MinPasswordLength {
		return "", invalid("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > MaxPasswordLength {
		return "", invalid("password", fmt.Sprintf("password must be at most %d bytes", MaxPasswordLength))
	}
	return password, nil
}

// parseRole accepts null as "no role".
func parseRole(f domain.Field) (string, *domain.ValidationIssue) {
	if f.IsNull() {
		return "", nil
	}
	role, ok := f.Text()
	if !ok {
		return "", invalid("role", "role must be a string")
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if _, ok := Roles[role]; !ok {
		return "", invalid("role", "role must be one of user, admin")
	}
	return role, nil
}

// NormalizeEmail returns the form used for uniqueness comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func missing(field string) *domain.ValidationIssue {
	return &domain.ValidationIssue{
		Field:    field,
		Message:  field + " is required",
		Category: domain.IssueMissing,
	}
}

func invalid(field, message string) *domain.ValidationIssue {
	return &domain.ValidationIssue{
		Field:    field,
		Message:  message,
		Category: domain.IssueInvalid,
	}
}
