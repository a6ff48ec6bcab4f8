// Package validation checks user-entered household data before it reaches the stores.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"starchart/internal/models"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	colorTagRegex = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
	pinRegex      = regexp.MustCompile(`^[0-9]{4,8}$`)
)

const (
	maxNameLength    = 50
	maxCaptionLength = 280
	maxAge           = 18
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateEmail checks if an email address is valid
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ValidationError{Field: "email", Message: "email is required"}
	}
	if !emailRegex.MatchString(email) {
		return ValidationError{Field: "email", Message: "invalid email format"}
	}
	return nil
}

// ValidatePIN checks a parent PIN is 4 to 8 digits
func ValidatePIN(pin string) error {
	if pin == "" {
		return ValidationError{Field: "pin", Message: "pin is required"}
	}
	if !pinRegex.MatchString(pin) {
		return ValidationError{Field: "pin", Message: "pin must be 4 to 8 digits"}
	}
	return nil
}

// ValidateName checks if a name is valid
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ValidationError{Field: "name", Message: "name is required"}
	}
	if utf8.RuneCountInString(name) < 2 {
		return ValidationError{Field: "name", Message: "name must be at least 2 characters"}
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return ValidationError{Field: "name", Message: fmt.Sprintf("name must be at most %d characters", maxNameLength)}
	}
	return nil
}

// ValidateColorTag checks a #RRGGBB color. Empty means "pick one for me".
func ValidateColorTag(tag string) error {
	if tag == "" || colorTagRegex.MatchString(tag) {
		return nil
	}
	return ValidationError{Field: "colorTag", Message: "color must look like #RRGGBB"}
}

// ValidateAge checks an optional age
func ValidateAge(age *int) error {
	if age == nil {
		return nil
	}
	if *age < 0 || *age > maxAge {
		return ValidationError{Field: "age", Message: fmt.Sprintf("age must be between 0 and %d", maxAge)}
	}
	return nil
}

// ValidateChild checks the editable fields of a child
func ValidateChild(child models.Child) error {
	if err := ValidateName(child.Name); err != nil {
		return err
	}
	if err := ValidateColorTag(child.ColorTag); err != nil {
		return err
	}
	return ValidateAge(child.Age)
}

// ValidateTargetPoints rejects goals that can never be reached or are already reached
func ValidateTargetPoints(target int) error {
	if target <= 0 {
		return ValidationError{Field: "targetPoints", Message: "target must be greater than zero"}
	}
	return nil
}

// ValidateReward checks a goal before it is saved
func ValidateReward(reward models.Reward) error {
	if err := ValidateName(reward.Name); err != nil {
		return err
	}
	if err := ValidateTargetPoints(reward.TargetPoints); err != nil {
		return err
	}
	if reward.DueDate != nil && !reward.DueDate.After(reward.CreatedDate) {
		return ValidationError{Field: "dueDate", Message: "deadline must be after the goal is created"}
	}
	return nil
}

// ValidateBehaviorType checks the category and that default points agree with it
func ValidateBehaviorType(bt models.BehaviorType) error {
	if err := ValidateName(bt.Name); err != nil {
		return err
	}
	if !bt.Category.Valid() {
		return ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", bt.Category)}
	}
	if bt.Category.IsPositive() && bt.DefaultPoints < 0 {
		return ValidationError{Field: "defaultPoints", Message: "positive behaviors cannot take points away"}
	}
	if !bt.Category.IsPositive() && bt.DefaultPoints > 0 {
		return ValidationError{Field: "defaultPoints", Message: "negative behaviors cannot award points"}
	}
	r := bt.SuggestedAgeRange
	if r.Min < 0 || r.Max < 0 || (r.Max != 0 && r.Max < r.Min) {
		return ValidationError{Field: "suggestedAgeRange", Message: "invalid age range"}
	}
	return nil
}

// ValidateCaption checks a special moment caption
func ValidateCaption(caption string) error {
	if strings.TrimSpace(caption) == "" {
		return ValidationError{Field: "caption", Message: "caption is required"}
	}
	if utf8.RuneCountInString(caption) > maxCaptionLength {
		return ValidationError{Field: "caption", Message: fmt.Sprintf("caption must be at most %d characters", maxCaptionLength)}
	}
	return nil
}
