package store

import "starchart/internal/models"

// DefaultBehaviors seeds a new household
var DefaultBehaviors = []models.BehaviorType{
	{Name: "Made bed", Category: models.CategoryRoutinePositive, DefaultPoints: 1, SuggestedAgeRange: models.AgeRange{Min: 4}},
	{Name: "Brushed teeth", Category: models.CategoryRoutinePositive, DefaultPoints: 1, SuggestedAgeRange: models.AgeRange{Min: 3}},
	{Name: "Tidied room", Category: models.CategoryRoutinePositive, DefaultPoints: 2, SuggestedAgeRange: models.AgeRange{Min: 4}},
	{Name: "Homework done", Category: models.CategoryPositive, DefaultPoints: 3, SuggestedAgeRange: models.AgeRange{Min: 6}},
	{Name: "Shared toys", Category: models.CategoryPositive, DefaultPoints: 2, SuggestedAgeRange: models.AgeRange{Min: 2, Max: 8}},
	{Name: "Helped a sibling", Category: models.CategoryPositive, DefaultPoints: 2},
	{Name: "Practiced instrument", Category: models.CategoryPositive, DefaultPoints: 3, SuggestedAgeRange: models.AgeRange{Min: 6}},
	{Name: "Did the dishes", Category: models.CategoryPositive, DefaultPoints: 2, IsMonetized: true, SuggestedAgeRange: models.AgeRange{Min: 8}},
	{Name: "Took out the trash", Category: models.CategoryPositive, DefaultPoints: 2, IsMonetized: true, SuggestedAgeRange: models.AgeRange{Min: 8}},
	{Name: "Hitting", Category: models.CategoryNegative, DefaultPoints: -3},
	{Name: "Talking back", Category: models.CategoryNegative, DefaultPoints: -2, SuggestedAgeRange: models.AgeRange{Min: 5}},
	{Name: "Screen time overrun", Category: models.CategoryNegative, DefaultPoints: -1, SuggestedAgeRange: models.AgeRange{Min: 5}},
}
