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

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vogo/vlinkmanager/config"
	"github.com/vogo/vlinkmanager/cores"
	"github.com/vogo/vlinkmanager/gormx"
	"github.com/vogo/vlinkmanager/importx"
	"github.com/vogo/vlinkmanager/memx"
	"github.com/vogo/vlinkmanager/redisx"
	"github.com/vogo/vogo/vlog"
	"gorm.io/gorm/logger"
)

const (
	previewSweepInterval = 10 * time.Minute
	uploadJanitorPeriod  = time.Hour
	shutdownTimeout      = 10 * time.Second
)

// LinkServer bundles the link manager with the import engine and the http surface
type LinkServer struct {
	*cores.LinkManager
	Engine  *importx.Engine
	Handler http.Handler

	stops []func()
}

// NewLinkServer wires storage, cache, preview store and routes from the config
func NewLinkServer(cfg *config.Config) (*LinkServer, error) {
	var redisClient *redis.Client
	if cfg.CacheDriver == config.CacheDriverRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return nil, err
		}
	}

	s := &LinkServer{}

	var cache cores.ResolutionCache
	if redisClient != nil {
		cache = redisx.NewRedisResolutionCache(redisClient,
			redisx.WithCacheKeyPrefix(cfg.RedisKeyPrefix),
			redisx.WithCacheGroup(cfg.CacheGroup))
	} else {
		memCache, err := memx.NewMemoryResolutionCache(cfg.MemCacheSize)
		if err != nil {
			return nil, err
		}
		cache = memCache
	}

	opts := []cores.ManagerOption{
		cores.WithStoreOptions(cores.WithCacheTTL(cfg.CacheTTL())),
		cores.WithSettingsOptions(cores.WithSettingsCacheTTL(cfg.SettingsCacheTTL())),
		cores.WithResolverOptions(
			cores.WithHomeURL(cfg.HomeURL),
			cores.WithSkipPrefixes(cfg.APIPrefix),
		),
		cores.WithRecountInterval(cfg.RecountInterval()),
	}

	if cfg.DBDriver == config.DBDriverMemory {
		var settingsRepo cores.SettingsRepository = memx.NewMemorySettingsRepository()
		if redisClient != nil {
			settingsRepo = redisx.NewRedisSettingsRepository(redisClient, cfg.RedisKeyPrefix)
		}
		s.LinkManager = cores.NewLinkManager(memx.NewMemoryLinkRepository(), settingsRepo, cache, opts...)
	} else {
		gormx.SetTablePrefix(cfg.TablePrefix)

		db, err := gormx.Open(cfg.DBDriver, cfg.DBDSN, logger.Warn)
		if err != nil {
			return nil, err
		}
		s.LinkManager = gormx.NewGormLinkManager(db, cache, opts...).LinkManager
	}
	s.stops = append(s.stops, s.LinkManager.Stop)

	if redisClient != nil {
		stopListen, err := watchSettings(s.LinkManager, redisx.NewSettingsNotifier(redisClient, cfg.RedisKeyPrefix))
		if err != nil {
			s.Stop()
			return nil, err
		}
		s.stops = append(s.stops, stopListen)
	}

	var previews importx.PreviewStore
	if redisClient != nil {
		previews = redisx.NewRedisPreviewStore(redisClient, cfg.RedisKeyPrefix)
	} else {
		memPreviews := memx.NewMemoryPreviewStore(previewSweepInterval)
		s.stops = append(s.stops, memPreviews.Stop)
		previews = memPreviews
	}

	s.Engine = importx.NewEngine(s.Store, s.Settings, previews,
		importx.WithUploadDir(cfg.UploadDir),
		importx.WithPreviewTTL(cfg.PreviewTTL()))
	s.Engine.StartJanitor(uploadJanitorPeriod)
	s.stops = append(s.stops, s.Engine.Stop)

	auth := cores.NewTokenAuthorizer(cfg.AuthToken)

	mux := http.NewServeMux()
	cores.NewAPI(s.Store, s.Settings,
		cores.WithAuthorizer(auth),
		cores.WithPublicURL(cfg.HomeURL),
		cores.WithResolver(s.Resolver),
	).Register(mux, cfg.APIPrefix)
	importx.NewHandler(s.Engine, importx.WithHandlerAuthorizer(auth)).Register(mux, cfg.APIPrefix)

	// every request not owned by the api goes through the redirect resolver first
	s.Handler = s.Resolver.Middleware(mux)

	return s, nil
}

// watchSettings keeps the settings caches of instances sharing one redis in step.
func watchSettings(m *cores.LinkManager, notifier *redisx.SettingsNotifier) (func(), error) {
	m.Events.Subscribe(func(event cores.Event) {
		if event.Type != cores.EventSettingsSaved {
			return
		}
		if err := notifier.Publish(context.Background()); err != nil {
			vlog.Errorf("publish settings change failed, err: %v", err)
		}
	})

	return notifier.Listen(context.Background(), m.Settings.Invalidate)
}

func (s *LinkServer) Stop() {
	for i := len(s.stops) - 1; i >= 0; i-- {
		s.stops[i]()
	}
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		vlog.Fatalf("failed to load config: %v", err)
	}

	server, err := NewLinkServer(cfg)
	if err != nil {
		vlog.Fatalf("failed to create link server: %v", err)
	}
	defer server.Stop()

	httpServer := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           server.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		vlog.Infof("server listen at %s, db: %s, cache: %s", cfg.ServerAddr, cfg.DBDriver, cfg.CacheDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			vlog.Fatalf("server listen failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		vlog.Errorf("server shutdown failed: %v", err)
	}

	vlog.Infof("server stopped")
}
