package main

import (
	"go.uber.org/zap"

	"github.com/akinalp/tradechat/ws"
)

// registerHubCallbacks connects the hub to the service layer. The hub
// lives in ws and must not import services, so the wiring happens here.
// Callbacks run in their own goroutines.
func registerHubCallbacks(hub *ws.Hub, svcs *Services, log *zap.Logger) {
	hub.OnAuthorizeTopic(svcs.Authorizer.Authorize)

	hub.OnUserFirstConnect(func(userID string) {
		log.Debug("user online", zap.String("user_id", userID))
	})

	// Drop cached grants so a reconnect re-checks participation.
	hub.OnUserFullyDisconnected(func(userID string) {
		svcs.Authorizer.InvalidateUser(userID)
		log.Debug("user offline", zap.String("user_id", userID))
	})
}
