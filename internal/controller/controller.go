package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/coview/groupwatch/internal/repository/connection"
	"github.com/coview/groupwatch/internal/service/relay"
	"github.com/coview/groupwatch/pkg/validator"
)

type iRelayService interface {
	RegisterRoom(context.Context, *relay.RegisterRoomParams) error
	ResolveRoom(context.Context, string) (string, error)
	ConnectClient(context.Context, *relay.ConnectClientParams) error
	DisconnectClient(context.Context, *websocket.Conn) (connection.Client, []*websocket.Conn, error)
	Broadcast(context.Context, *websocket.Conn, []byte) error
	BroadcastTo(context.Context, []*websocket.Conn, []byte)
}

type controller struct {
	relayService iRelayService
	upgrader     websocket.Upgrader
	validate     *validator.Validator
	logger       *slog.Logger
}

func NewController(relayService iRelayService, logger *slog.Logger) *controller {
	return &controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		relayService: relayService,
		validate:     validator.NewValidator(),
		logger:       logger,
	}
}
