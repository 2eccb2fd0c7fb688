package backup

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vetle/clinicd/internal/model"
)

// ErrRoleForbidden is returned when a role outside {Admin, Doctor} asks for
// a backup.
var ErrRoleForbidden = errors.New("role is not permitted to trigger backups")

// defaultDoctorCollections is the least-privilege export scope for doctors:
// patient-care data only, no system internals.
var defaultDoctorCollections = []string{
	model.CollectionAppointments,
	model.CollectionLabWorks,
	model.CollectionPatients,
	model.CollectionBillings,
}

// ExportPolicy maps roles to the collections they may export. Admin is
// always unrestricted and is not configurable.
type ExportPolicy struct {
	Doctor []string `yaml:"doctor"`
}

// LoadPolicy reads an export policy from a YAML file.
func LoadPolicy(path string) (*ExportPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export policy %s: %w", path, err)
	}
	var policy ExportPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parse export policy %s: %w", path, err)
	}
	if len(policy.Doctor) == 0 {
		return nil, fmt.Errorf("export policy %s: doctor collection list is empty", path)
	}
	return &policy, nil
}

// Scope resolves which collections a role may export.
type Scope struct {
	policy *ExportPolicy
}

// NewScope creates a Scope. policy may be nil, in which case the built-in
// doctor allow-list applies.
func NewScope(policy *ExportPolicy) *Scope {
	return &Scope{policy: policy}
}

// CollectionsFor returns the collections included in a backup for the given
// role: everything present for Admin, the fixed allow-list for Doctor.
func (s *Scope) CollectionsFor(ctx context.Context, db Database, role model.Role) ([]string, error) {
	switch role {
	case model.RoleAdmin:
		names, err := db.CollectionNames(ctx)
		if err != nil {
			return nil, fmt.Errorf("list collections: %w", err)
		}
		return names, nil
	case model.RoleDoctor:
		if s.policy != nil {
			return append([]string(nil), s.policy.Doctor...), nil
		}
		return append([]string(nil), defaultDoctorCollections...), nil
	default:
		return nil, ErrRoleForbidden
	}
}
