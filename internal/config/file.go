package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/dmitrijs2005/gophchat/internal/flagx"
)

// duration unmarshals from "15m" style strings or, in JSON, integer
// nanoseconds.
type duration time.Duration

// UnmarshalText handles TOML string values.
func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func (d *duration) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = duration(v)
		return nil
	}

	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration must be a string or integer nanoseconds: %w", err)
	}
	*d = duration(n)
	return nil
}

// fileConfig mirrors Config for decoding. Pointers tell a missing key from
// a zero value.
type fileConfig struct {
	Backend       *string `json:"backend" toml:"backend"`
	LocalDBPath   *string `json:"local_db_path" toml:"local_db_path"`
	LogLevel      *string `json:"log_level" toml:"log_level"`
	PostsPageSize *int    `json:"posts_page_size" toml:"posts_page_size"`

	FirestoreProject         *string `json:"firestore_project" toml:"firestore_project"`
	FirestoreCredentialsFile *string `json:"firestore_credentials_file" toml:"firestore_credentials_file"`

	DatabaseDSN   *string   `json:"database_dsn" toml:"database_dsn"`
	SecretKey     *string   `json:"secret_key" toml:"secret_key"`
	TokenValidity *duration `json:"token_validity" toml:"token_validity"`

	S3Region    *string `json:"s3_region" toml:"s3_region"`
	S3Endpoint  *string `json:"s3_endpoint" toml:"s3_endpoint"`
	S3Bucket    *string `json:"s3_bucket" toml:"s3_bucket"`
	S3AccessKey *string `json:"s3_access_key" toml:"s3_access_key"`
	S3SecretKey *string `json:"s3_secret_key" toml:"s3_secret_key"`
	S3PublicURL *string `json:"s3_public_url" toml:"s3_public_url"`
}

// parseFile overlays cfg with the file named by -c/-config in args, if any.
// Files ending in .toml are read as TOML, anything else as JSON. Unknown
// keys are rejected.
func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	var jc fileConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&jc)
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&jc)
	}
	if err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	setString(&cfg.Backend, jc.Backend)
	setString(&cfg.LocalDBPath, jc.LocalDBPath)
	setString(&cfg.LogLevel, jc.LogLevel)
	if jc.PostsPageSize != nil {
		cfg.PostsPageSize = *jc.PostsPageSize
	}
	setString(&cfg.FirestoreProject, jc.FirestoreProject)
	setString(&cfg.FirestoreCredentialsFile, jc.FirestoreCredentialsFile)
	setString(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setString(&cfg.SecretKey, jc.SecretKey)
	setDuration(&cfg.TokenValidity, jc.TokenValidity)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3Endpoint, jc.S3Endpoint)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3AccessKey, jc.S3AccessKey)
	setString(&cfg.S3SecretKey, jc.S3SecretKey)
	setString(&cfg.S3PublicURL, jc.S3PublicURL)

	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *duration) {
	if v != nil {
		*dst = time.Duration(*v)
	}
}
