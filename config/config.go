/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/vogo/vogo/vos"
	"gopkg.in/yaml.v3"
)

const (
	DBDriverMemory    = "memory"
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

// Config is the static process configuration. Redirect settings such as the
// prefix live in the settings repository instead.
type Config struct {
	ServerAddr        string `yaml:"server_addr"`
	HomeURL           string `yaml:"home_url"`
	APIPrefix         string `yaml:"api_prefix"`
	AuthToken         string `yaml:"auth_token"`
	DBDriver          string `yaml:"db_driver"`
	DBDSN             string `yaml:"db_dsn"`
	TablePrefix       string `yaml:"table_prefix"`
	CacheDriver       string `yaml:"cache_driver"`
	CacheGroup        string `yaml:"cache_group"`
	CacheTTLSeconds   int64  `yaml:"cache_ttl_seconds"`
	MemCacheSize      int    `yaml:"mem_cache_size"`
	RedisAddr         string `yaml:"redis_addr"`
	RedisPassword     string `yaml:"redis_password"`
	RedisDB           int    `yaml:"redis_db"`
	RedisKeyPrefix    string `yaml:"redis_key_prefix"`
	UploadDir         string `yaml:"upload_dir"`
	PreviewTTLSeconds int64  `yaml:"preview_ttl_seconds"`
	RecountHours      int    `yaml:"recount_hours"`

	// how long an instance trusts its cached settings, 0 keeps them until a change is seen
	SettingsCacheSeconds int64 `yaml:"settings_cache_seconds"`
}

func Default() *Config {
	return &Config{
		ServerAddr:        ":8080",
		HomeURL:           "http://localhost:8080",
		APIPrefix:         "/api/v1",
		DBDriver:          "sqlite",
		DBDSN:             "file:vlinkmanager.db",
		CacheDriver:       CacheDriverMemory,
		CacheGroup:        "vlinks",
		MemCacheSize:      10000,
		RedisAddr:         "localhost:6379",
		PreviewTTLSeconds: 3600,
		RecountHours:      24,

		SettingsCacheSeconds: 30,
	}
}

// Load reads .env, then the yaml file at path (or CONFIG_FILE when path is
// empty), then applies environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // a missing .env is fine

	cfg := Default()

	path = strings.TrimSpace(path)
	if path == "" {
		path = vos.GetEnvStr("CONFIG_FILE", "")
	}

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %q: %w", path, err)
		}

		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ServerAddr = vos.GetEnvStr("SERVER_ADDR", c.ServerAddr)
	c.HomeURL = vos.GetEnvStr("HOME_URL", c.HomeURL)
	c.APIPrefix = vos.GetEnvStr("API_PREFIX", c.APIPrefix)
	c.AuthToken = vos.GetEnvStr("AUTH_TOKEN", c.AuthToken)
	c.DBDriver = vos.GetEnvStr("DB_DRIVER", c.DBDriver)
	c.DBDSN = vos.GetEnvStr("DB_DSN", c.DBDSN)
	c.TablePrefix = vos.GetEnvStr("TABLE_PREFIX", c.TablePrefix)
	c.CacheDriver = vos.GetEnvStr("CACHE_DRIVER", c.CacheDriver)
	c.CacheGroup = vos.GetEnvStr("CACHE_GROUP", c.CacheGroup)
	c.CacheTTLSeconds = vos.GetEnvInt64("CACHE_TTL_SECONDS", c.CacheTTLSeconds)
	c.MemCacheSize = vos.GetEnvInt("MEM_CACHE_SIZE", c.MemCacheSize)
	c.RedisAddr = vos.GetEnvStr("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = vos.GetEnvStr("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = vos.GetEnvInt("REDIS_DB", c.RedisDB)
	c.RedisKeyPrefix = vos.GetEnvStr("REDIS_KEY_PREFIX", c.RedisKeyPrefix)
	c.UploadDir = vos.GetEnvStr("UPLOAD_DIR", c.UploadDir)
	c.PreviewTTLSeconds = vos.GetEnvInt64("PREVIEW_TTL_SECONDS", c.PreviewTTLSeconds)
	c.RecountHours = vos.GetEnvInt("RECOUNT_HOURS", c.RecountHours)
	c.SettingsCacheSeconds = vos.GetEnvInt64("SETTINGS_CACHE_SECONDS", c.SettingsCacheSeconds)
}

func (c *Config) Validate() error {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	switch c.DBDriver {
	case DBDriverMemory, "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid db_driver %q, expected mysql, postgres, sqlite or memory", c.DBDriver)
	}

	if c.DBDriver != DBDriverMemory && c.DBDSN == "" {
		return fmt.Errorf("db_dsn is required for db_driver %q", c.DBDriver)
	}

	c.CacheDriver = strings.ToLower(strings.TrimSpace(c.CacheDriver))
	switch c.CacheDriver {
	case CacheDriverMemory, CacheDriverRedis:
	default:
		return fmt.Errorf("invalid cache_driver %q, expected redis or memory", c.CacheDriver)
	}

	if c.CacheTTLSeconds < 0 {
		return fmt.Errorf("invalid cache_ttl_seconds %d, expected >= 0", c.CacheTTLSeconds)
	}
	if c.SettingsCacheSeconds < 0 {
		return fmt.Errorf("invalid settings_cache_seconds %d, expected >= 0", c.SettingsCacheSeconds)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("invalid redis_db %d, expected >= 0", c.RedisDB)
	}

	if !strings.HasPrefix(c.APIPrefix, "/") {
		c.APIPrefix = "/" + c.APIPrefix
	}
	c.APIPrefix = strings.TrimRight(c.APIPrefix, "/")
	if c.APIPrefix == "" {
		return fmt.Errorf("api_prefix must not be the site root")
	}

	return nil
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c *Config) PreviewTTL() time.Duration {
	return time.Duration(c.PreviewTTLSeconds) * time.Second
}

func (c *Config) RecountInterval() time.Duration {
	return time.Duration(c.RecountHours) * time.Hour
}

func (c *Config) SettingsCacheTTL() time.Duration {
	return time.Duration(c.SettingsCacheSeconds) * time.Second
}
