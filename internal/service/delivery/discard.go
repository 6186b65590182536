package delivery

import (
	"context"

	"github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
)

// Discard drops every event. Offline tools use it so repairs do not push.
var Discard chat.Notifier = discard{}

type discard struct{}

func (discard) Notify(context.Context, string, chat.Event) {}
