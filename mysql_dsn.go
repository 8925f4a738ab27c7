package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

const mysqlDialTimeout = 10 * time.Second

// mysqlDSNWithReadOptions normalizes a user DSN for reading the sales
// dataset: DATE/DATETIME arrive as time.Time in UTC and the connection
// speaks utf8mb4 unless the DSN says otherwise.
func mysqlDSNWithReadOptions(baseDSN string) (string, error) {
	cfg, err := mysql.ParseDSN(baseDSN)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.InterpolateParams = true
	cfg.Loc = time.UTC
	if cfg.Timeout == 0 {
		cfg.Timeout = mysqlDialTimeout
	}
	// ParseDSN keeps charset out of Params, so look at the raw query.
	if !dsnHasParam(baseDSN, "charset") {
		if cfg.Params == nil {
			cfg.Params = map[string]string{}
		}
		cfg.Params["charset"] = "utf8mb4"
	}
	return cfg.FormatDSN(), nil
}

func dsnHasParam(dsn, name string) bool {
	i := strings.LastIndexByte(dsn, '?')
	if i < 0 {
		return false
	}
	q, err := url.ParseQuery(dsn[i+1:])
	if err != nil {
		return false
	}
	return q.Has(name)
}
