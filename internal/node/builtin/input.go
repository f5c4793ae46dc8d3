package builtin

import (
	"context"

	"github.com/diazhh/petroedge-sub001/internal/message"
	"github.com/diazhh/petroedge-sub001/internal/node"
)

// dataSourceInput is the chain entry point for telemetry. It stamps a
// default message type and optionally tags the declared source kind so
// downstream switches can route on it.
type dataSourceInput struct {
	sourceType  string
	messageType string
}

func newDataSourceInput(config map[string]any) (node.Handler, error) {
	return &dataSourceInput{
		sourceType:  cfgString(config, "sourceType", ""),
		messageType: cfgString(config, "messageType", "TELEMETRY"),
	}, nil
}

func (h *dataSourceInput) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	if msg.Meta.MessageType == "" {
		msg.Meta.MessageType = h.messageType
	}
	if h.sourceType != "" {
		msg.SetValue("sourceType", h.sourceType)
	}
	return node.Success(msg), nil
}
