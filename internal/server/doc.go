// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes a conversation over JSON/HTTP for browser chat
// front ends.
//
// # Endpoints
//
//   - POST   /api/messages       - Submit {"text": "..."}; 409 while a reply is pending
//   - GET    /api/messages       - Transcript in insertion order
//   - PATCH  /api/messages/{id}  - Amend a stored message
//   - GET    /api/state          - Messages, typing users, isProcessing, alerts
//   - DELETE /api/alerts         - Clear pending alerts
//   - GET    /health             - Bridge and endpoint status
//
// # Middleware
//
// Requests pass through recovery, request ids (X-Request-Id), logging,
// security headers, CORS, per-IP rate limiting and a body size limit, in
// that order.
//
// # Usage
//
//	srv := server.New(server.Config{
//		Session:         session,
//		Addr:            cfg.Addr(),
//		AllowedOrigins:  cfg.Server.AllowedOrigins,
//		RateLimitPerMin: cfg.Server.RateLimitPerMin,
//	})
//	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
//		log.Fatal(err)
//	}
package server
