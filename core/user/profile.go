package user

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/pueriangeli/core"
)

// ParentProfile is the civil record a parent fills in for the school office.
// Dates are calendar dates (core.DateLayout); the school code is issued by the office.
type ParentProfile struct {
	Code        string `json:"code" validate:"omitempty,code"`
	Sex         string `json:"sex" validate:"omitempty,oneof=M F"`
	Phone       string `json:"phone" validate:"omitempty,phone"`
	BirthDate   string `json:"birth_date" validate:"omitempty,date"`
	BirthPlace  string `json:"birth_place" validate:"max=100"`
	Nationality string `json:"nationality" validate:"max=100"`
	CivilStatus string `json:"civil_status" validate:"max=50"`

	// address
	Province  string `json:"province" validate:"max=100"`
	District  string `json:"district" validate:"max=100"`
	Territory string `json:"territory" validate:"max=100"`
	Sector    string `json:"sector" validate:"max=100"`
	Commune   string `json:"commune" validate:"max=100"`

	EmergencyName    string `json:"emergency_name" validate:"max=100"`
	EmergencyPhone   string `json:"emergency_phone" validate:"omitempty,phone"`
	EmergencyAddress string `json:"emergency_address" validate:"max=200"`

	DiplomaType    string `json:"diploma_type" validate:"max=100"`
	DiplomaNumber  string `json:"diploma_number" validate:"max=50"`
	DiplomaSection string `json:"diploma_section" validate:"max=100"`
	DiplomaSchool  string `json:"diploma_school" validate:"max=100"`
	DiplomaYear    string `json:"diploma_year" validate:"omitempty,len=4,numeric"`

	PhotoURL string `json:"photo_url" validate:"omitempty,url"`
}

func (pp *ParentProfile) Validate(validate *validator.Validate) error {
	for _, fld := range []*string{
		&pp.Code, &pp.Phone, &pp.BirthDate, &pp.BirthPlace, &pp.Nationality, &pp.CivilStatus,
		&pp.Province, &pp.District, &pp.Territory, &pp.Sector, &pp.Commune,
		&pp.EmergencyName, &pp.EmergencyPhone, &pp.EmergencyAddress,
		&pp.DiplomaType, &pp.DiplomaNumber, &pp.DiplomaSection, &pp.DiplomaSchool, &pp.DiplomaYear,
		&pp.PhotoURL,
	} {
		*fld = core.CleanString(*fld)
	}
	switch core.CleanString(pp.Sex, true /* lower */) {
	case "m", "masculin", "male":
		pp.Sex = "M"
	case "f", "feminin", "féminin", "female":
		pp.Sex = "F"
	}
	return validate.Struct(pp)
}

// Value stores the profile as a JSON document.
func (pp ParentProfile) Value() (driver.Value, error) {
	return json.Marshal(pp)
}

func (pp *ParentProfile) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, pp)
	case string:
		return json.Unmarshal([]byte(v), pp)
	default:
		return fmt.Errorf("cannot scan %T into user.ParentProfile", src)
	}
}
