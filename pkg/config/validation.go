package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/opencpx/cpx/pkg/store"
)

// Validate checks a configuration against the struct validation tags and
// the cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describeFieldError(fe))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if err := validateStore(&cfg.Store); err != nil {
		return err
	}

	if cfg.Session.PollTimeout <= 0 {
		return errors.New("session poll_timeout must be positive")
	}
	if cfg.Session.IdleTimeout <= 0 {
		return errors.New("session idle_timeout must be positive")
	}
	if cfg.Server.WriteTimeout != 0 && cfg.Server.WriteTimeout <= cfg.Session.PollTimeout {
		return fmt.Errorf("server write_timeout (%s) must exceed session poll_timeout (%s)",
			cfg.Server.WriteTimeout, cfg.Session.PollTimeout)
	}
	return nil
}

// describeFieldError turns a validator error into a readable message.
func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Namespace())
	field = strings.TrimPrefix(field, "config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation rule %q", field, fe.Tag())
	}
}

func validateStore(cfg *store.Config) error {
	switch cfg.Type {
	case store.DatabaseTypeSQLite:
		if cfg.SQLite.Path == "" {
			return errors.New("store.sqlite.path is required for the sqlite store")
		}
	case store.DatabaseTypePostgres:
		if cfg.Postgres.Host == "" {
			return errors.New("store.postgres.host is required for the postgres store")
		}
		if cfg.Postgres.Database == "" {
			return errors.New("store.postgres.database is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store type: %q", cfg.Type)
	}
	return nil
}
