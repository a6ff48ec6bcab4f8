package validation

import (
	"errors"
	"strings"
	"testing"
	"time"

	"starchart/internal/models"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{
			name:    "valid email",
			email:   "test@example.com",
			wantErr: false,
		},
		{
			name:    "valid email with subdomain",
			email:   "user@mail.example.com",
			wantErr: false,
		},
		{
			name:    "valid email with plus",
			email:   "user+tag@example.com",
			wantErr: false,
		},
		{
			name:    "missing @",
			email:   "testexample.com",
			wantErr: true,
		},
		{
			name:    "missing domain",
			email:   "test@",
			wantErr: true,
		},
		{
			name:    "missing local part",
			email:   "@example.com",
			wantErr: true,
		},
		{
			name:    "empty string",
			email:   "",
			wantErr: true,
		},
		{
			name:    "spaces in email",
			email:   "test @example.com",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "valid name",
			input:   "John Doe",
			wantErr: false,
		},
		{
			name:    "single name",
			input:   "John",
			wantErr: false,
		},
		{
			name:    "empty name",
			input:   "",
			wantErr: true,
		},
		{
			name:    "name too short",
			input:   "J",
			wantErr: true,
		},
		{
			name:    "name with hyphen",
			input:   "Mary-Jane",
			wantErr: false,
		},
		{
			name:    "name with apostrophe",
			input:   "O'Brien",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePIN(t *testing.T) {
	tests := []struct {
		name    string
		pin     string
		wantErr bool
	}{
		{
			name:    "four digits",
			pin:     "1234",
			wantErr: false,
		},
		{
			name:    "eight digits",
			pin:     "12345678",
			wantErr: false,
		},
		{
			name:    "too short",
			pin:     "123",
			wantErr: true,
		},
		{
			name:    "letters",
			pin:     "12ab",
			wantErr: true,
		},
		{
			name:    "empty pin",
			pin:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePIN(tt.pin)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePIN(%q) error = %v, wantErr %v", tt.pin, err, tt.wantErr)
			}
		})
	}
}

func TestValidateChild(t *testing.T) {
	age := func(n int) *int { return &n }

	tests := []struct {
		name      string
		child     models.Child
		wantField string
	}{
		{
			name:  "valid child",
			child: models.Child{Name: "Ada", ColorTag: "#4A90E2", Age: age(7)},
		},
		{
			name:  "no color or age",
			child: models.Child{Name: "Ada"},
		},
		{
			name:      "bad color",
			child:     models.Child{Name: "Ada", ColorTag: "blue"},
			wantField: "colorTag",
		},
		{
			name:      "negative age",
			child:     models.Child{Name: "Ada", Age: age(-1)},
			wantField: "age",
		},
		{
			name:      "name too long",
			child:     models.Child{Name: strings.Repeat("a", 51)},
			wantField: "name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChild(tt.child)
			assertField(t, err, tt.wantField)
		})
	}
}

func TestValidateReward(t *testing.T) {
	created := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	before := created.Add(-time.Hour)

	tests := []struct {
		name      string
		reward    models.Reward
		wantField string
	}{
		{
			name:   "valid reward",
			reward: models.Reward{Name: "Bike ride", TargetPoints: 10, CreatedDate: created},
		},
		{
			name:      "zero target",
			reward:    models.Reward{Name: "Bike ride", TargetPoints: 0, CreatedDate: created},
			wantField: "targetPoints",
		},
		{
			name:      "negative target",
			reward:    models.Reward{Name: "Bike ride", TargetPoints: -5, CreatedDate: created},
			wantField: "targetPoints",
		},
		{
			name:      "deadline before creation",
			reward:    models.Reward{Name: "Bike ride", TargetPoints: 5, CreatedDate: created, DueDate: &before},
			wantField: "dueDate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertField(t, ValidateReward(tt.reward), tt.wantField)
		})
	}
}

func TestValidateBehaviorType(t *testing.T) {
	tests := []struct {
		name      string
		bt        models.BehaviorType
		wantField string
	}{
		{
			name: "positive",
			bt:   models.BehaviorType{Name: "Made bed", Category: models.CategoryRoutinePositive, DefaultPoints: 2},
		},
		{
			name: "negative",
			bt:   models.BehaviorType{Name: "Hitting", Category: models.CategoryNegative, DefaultPoints: -3},
		},
		{
			name:      "unknown category",
			bt:        models.BehaviorType{Name: "Made bed", Category: "chore"},
			wantField: "category",
		},
		{
			name:      "negative behavior awarding points",
			bt:        models.BehaviorType{Name: "Hitting", Category: models.CategoryNegative, DefaultPoints: 3},
			wantField: "defaultPoints",
		},
		{
			name:      "inverted age range",
			bt:        models.BehaviorType{Name: "Homework", Category: models.CategoryPositive, SuggestedAgeRange: models.AgeRange{Min: 9, Max: 6}},
			wantField: "suggestedAgeRange",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertField(t, ValidateBehaviorType(tt.bt), tt.wantField)
		})
	}
}

func TestValidateCaption(t *testing.T) {
	if err := ValidateCaption("First bike ride without training wheels"); err != nil {
		t.Errorf("ValidateCaption() error = %v", err)
	}
	if err := ValidateCaption("   "); err == nil {
		t.Error("blank caption should be rejected")
	}
	if err := ValidateCaption(strings.Repeat("x", 281)); err == nil {
		t.Error("long caption should be rejected")
	}
}

func assertField(t *testing.T, err error, field string) {
	t.Helper()
	if field == "" {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		return
	}
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError on %s", err, field)
	}
	if verr.Field != field {
		t.Errorf("Field = %s, want %s", verr.Field, field)
	}
}
