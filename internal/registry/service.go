package registry

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dbdeck-labs/dbdeck/pkg/core"
)

// ConnectionValidator probes a live connection to a database endpoint.
// It returns whether the endpoint accepted the credentials and a
// human-readable message describing the outcome.
type ConnectionValidator interface {
	Validate(ctx context.Context, dbType core.DBType, host string, port int, username, password string) (bool, string)
}

// Service implements instance lifecycle operations on top of a Store.
// Every write goes through full validation: field checks, name
// uniqueness within the user scope, then a live connectivity probe.
type Service struct {
	store     Store
	validator ConnectionValidator
	logger    *slog.Logger
}

// NewService creates a registry service.
func NewService(store Store, validator ConnectionValidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{store: store, validator: validator, logger: logger}
}

// CreateParams holds the fields accepted when registering an instance.
// Username and password are opaque and may be empty; status defaults to
// "running" when unset.
type CreateParams struct {
	Name     string      `json:"name"`
	Host     string      `json:"host"`
	Port     int         `json:"port"`
	Username string      `json:"username"`
	Password string      `json:"password"`
	DBType   core.DBType `json:"dbType"`
	Status   string      `json:"status"`
	UserID   string      `json:"-"`
}

// UpdateParams holds the fields accepted when updating an instance.
// Nil pointers mean "keep the stored value".
type UpdateParams struct {
	Name     *string      `json:"name"`
	Host     *string      `json:"host"`
	Port     *int         `json:"port"`
	Username *string      `json:"username"`
	Password *string      `json:"password"`
	DBType   *core.DBType `json:"dbType"`
	Status   *string      `json:"status"`
}

// touchesConnection reports whether the request carries any field that
// changes how the instance is reached. Only those updates re-probe.
func (p UpdateParams) touchesConnection() bool {
	return p.Host != nil || p.Port != nil || p.Username != nil || p.Password != nil || p.DBType != nil
}

// List returns all instances visible in the user scope.
func (s *Service) List(ctx context.Context, userID string) ([]*core.Instance, error) {
	return s.store.ListInstances(ctx, userID)
}

// Get returns a single instance by id within the user scope.
func (s *Service) Get(ctx context.Context, id int64, userID string) (*core.Instance, error) {
	return s.store.GetInstance(ctx, id, userID)
}

// Create validates and registers a new instance.
func (s *Service) Create(ctx context.Context, p CreateParams) (*core.Instance, error) {
	status := p.Status
	if status == "" {
		status = core.StatusRunning
	}
	inst := &core.Instance{
		Name:     strings.TrimSpace(p.Name),
		Host:     strings.TrimSpace(p.Host),
		Port:     p.Port,
		Username: p.Username,
		Password: p.Password,
		DBType:   p.DBType,
		Status:   status,
		UserID:   p.UserID,
	}

	if err := validateFields(inst); err != nil {
		return nil, err
	}

	existing, err := s.store.GetInstanceByName(ctx, inst.Name, inst.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, core.Validationf("instance name already exists")
	}

	ok, msg := s.validator.Validate(ctx, inst.DBType, inst.Host, inst.Port, inst.Username, inst.Password)
	if !ok {
		return nil, core.Connectivityf(nil, "connection test failed: %s", msg)
	}

	if err := s.store.CreateInstance(ctx, inst); err != nil {
		return nil, err
	}

	s.logger.Info("instance registered",
		"id", inst.ID, "name", inst.Name, "dbType", string(inst.DBType))
	return inst, nil
}

// Update validates and applies changes to an existing instance. The
// merged view of stored and incoming fields must pass the same field
// checks as a fresh registration. The connectivity probe runs only
// when the request touches a connection field.
func (s *Service) Update(ctx context.Context, id int64, userID string, p UpdateParams) (*core.Instance, error) {
	inst, err := s.store.GetInstance(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		inst.Name = strings.TrimSpace(*p.Name)
	}
	if p.Host != nil {
		inst.Host = strings.TrimSpace(*p.Host)
	}
	if p.Port != nil {
		inst.Port = *p.Port
	}
	if p.Username != nil {
		inst.Username = *p.Username
	}
	if p.Password != nil {
		inst.Password = *p.Password
	}
	if p.DBType != nil {
		inst.DBType = *p.DBType
	}
	if p.Status != nil {
		inst.Status = *p.Status
	}

	if err := validateFields(inst); err != nil {
		return nil, err
	}

	existing, err := s.store.GetInstanceByName(ctx, inst.Name, inst.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ID != inst.ID {
		return nil, core.Validationf("instance name already exists")
	}

	if p.touchesConnection() {
		ok, msg := s.validator.Validate(ctx, inst.DBType, inst.Host, inst.Port, inst.Username, inst.Password)
		if !ok {
			return nil, core.Connectivityf(nil, "connection test failed: %s", msg)
		}
	}

	if err := s.store.UpdateInstance(ctx, inst); err != nil {
		return nil, err
	}

	s.logger.Info("instance updated", "id", inst.ID, "name", inst.Name)
	return inst, nil
}

// Delete removes an instance by id within the user scope.
func (s *Service) Delete(ctx context.Context, id int64, userID string) error {
	if err := s.store.DeleteInstance(ctx, id, userID); err != nil {
		return err
	}
	s.logger.Info("instance deleted", "id", id)
	return nil
}

// validateFields checks the structural constraints on an instance record.
func validateFields(inst *core.Instance) error {
	if inst.Name == "" {
		return core.Validationf("name is required")
	}
	if len(inst.Name) > core.MaxNameLength {
		return core.Validationf("name must be at most %d characters", core.MaxNameLength)
	}
	if inst.Host == "" {
		return core.Validationf("host is required")
	}
	if inst.Port < 1 || inst.Port > 65535 {
		return core.Validationf("port must be between 1 and 65535")
	}
	if !core.ValidDBType(string(inst.DBType)) {
		return core.Validationf("unsupported database type: %s", inst.DBType)
	}
	return nil
}
