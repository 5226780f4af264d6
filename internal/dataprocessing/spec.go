package dataprocessing

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	apperrors "tabtweak/internal/errors"
	"tabtweak/pkg/contracts/domain"
)

var specValidator = newSpecValidator()

func newSpecValidator() *validator.Validate {
	v := validator.New()
	// report yaml keys, which is what users write
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// datasetFile is the on-disk layout. A file holds either one dataset at the
// top level or a list under "datasets".
type datasetFile struct {
	domain.DatasetSpec `yaml:",inline"`
	Datasets           []domain.DatasetSpec `yaml:"datasets"`
}

// ValidateDatasetSpec checks struct constraints on a dataset definition
func ValidateDatasetSpec(spec domain.DatasetSpec) error {
	if err := specValidator.Struct(spec); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			fields = append(fields, err.Error())
		}
		return apperrors.NewAppValidationError(
			fmt.Sprintf("dataset %q: %s", spec.Name, strings.Join(fields, "; ")),
			err,
		).WithContext("dataset", spec.Name)
	}
	return nil
}

// ParseDatasetSpecs decodes and validates dataset definitions from YAML
func ParseDatasetSpecs(data []byte) ([]domain.DatasetSpec, error) {
	var file datasetFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, apperrors.NewParsingError("failed to decode dataset definition", err)
	}

	specs := file.Datasets
	if len(specs) == 0 {
		specs = []domain.DatasetSpec{file.DatasetSpec}
	}

	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if err := ValidateDatasetSpec(spec); err != nil {
			return nil, err
		}
		if seen[spec.Name] {
			return nil, apperrors.NewConflictError(fmt.Sprintf("dataset %q is defined more than once", spec.Name))
		}
		seen[spec.Name] = true
	}
	return specs, nil
}

// LoadDatasetSpecs reads dataset definitions from a YAML file
func LoadDatasetSpecs(path string) ([]domain.DatasetSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to read %s", path), err)
	}
	specs, err := ParseDatasetSpecs(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return specs, nil
}
