package domain

import (
	"math"
	"time"
)

// Biological sex values accepted on a profile.
const (
	SexMale   = "male"
	SexFemale = "female"
)

// BMI categories.
const (
	BMIUnderweight = "underweight"
	BMINormal      = "normal"
	BMIOverweight  = "overweight"
	BMIObese       = "obese"
)

// BirthdateLayout is the storage and wire format of a birthdate.
const BirthdateLayout = "2006-01-02"

// HealthProfile holds the per-user health facts used to personalise analyses.
type HealthProfile struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Birthdate         string    `json:"birthdate"`
	Sex               string    `json:"sex"`
	HeightFeet        int       `json:"heightFeet"`
	HeightInches      int       `json:"heightInches"`
	WeightPounds      int       `json:"weightPounds"`
	MedicalConditions []string  `json:"medicalConditions"`
	Medications       []string  `json:"medications"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// BMI returns the body mass index computed from the profile.
func (p HealthProfile) BMI() float64 {
	return CalculateBMI(p.WeightPounds, p.HeightFeet, p.HeightInches)
}

// Age returns whole years between the birthdate and now, or 0 when the birthdate is unparseable.
func (p HealthProfile) Age(now time.Time) int {
	born, err := time.Parse(BirthdateLayout, p.Birthdate)
	if err != nil {
		return 0
	}
	years := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// CalculateBMI applies the imperial formula weight*703/inches² and rounds to one decimal.
func CalculateBMI(weightPounds, heightFeet, heightInches int) float64 {
	inches := float64(heightFeet*12 + heightInches)
	if inches <= 0 {
		return 0
	}
	bmi := float64(weightPounds) * 703 / (inches * inches)
	return math.Round(bmi*10) / 10
}

// BMICategory maps a BMI value onto its category.
func BMICategory(bmi float64) string {
	switch {
	case bmi < 18.5:
		return BMIUnderweight
	case bmi < 25:
		return BMINormal
	case bmi < 30:
		return BMIOverweight
	default:
		return BMIObese
	}
}
