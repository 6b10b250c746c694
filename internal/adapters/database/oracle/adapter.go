// Package oracle implements the Oracle adapter over sijms/go-ora.
package oracle

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	goora "github.com/sijms/go-ora/v2"

	"github.com/satishbabariya/cohortsql/internal/adapters/database"
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
)

// Adapter implements database.Adapter for Oracle.
type Adapter struct {
	database.Pool
}

// NewAdapter creates a new Oracle adapter. The URL is either a go-ora
// oracle:// URL or a "user/password@host:port/service" connect string.
func NewAdapter(config database.Config) (*Adapter, error) {
	u, err := connectURL(config.URL)
	if err != nil {
		return nil, err
	}
	config.URL = u
	return &Adapter{Pool: database.NewPool(config, dialect.Oracle)}, nil
}

// Connect establishes a connection to the Oracle database.
func (a *Adapter) Connect(ctx context.Context) error {
	db, err := sql.Open("oracle", a.Config().URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	return a.Attach(ctx, db)
}

func connectURL(raw string) (string, error) {
	if strings.HasPrefix(raw, "oracle://") {
		if _, err := url.Parse(raw); err != nil {
			return "", fmt.Errorf("oracle: %w", err)
		}
		return raw, nil
	}
	creds, addr, ok := strings.Cut(raw, "@")
	if !ok {
		return "", fmt.Errorf("oracle: connect string %q has no host", raw)
	}
	user, password, _ := strings.Cut(creds, "/")
	hostPort, service, _ := strings.Cut(addr, "/")
	host, portText, hasPort := strings.Cut(hostPort, ":")
	port := 1521
	if hasPort {
		p, err := strconv.Atoi(portText)
		if err != nil {
			return "", fmt.Errorf("oracle: bad port %q", portText)
		}
		port = p
	}
	return goora.BuildUrl(host, port, service, user, password, nil), nil
}

var _ database.Adapter = (*Adapter)(nil)
