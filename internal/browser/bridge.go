package browser

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/hpungsan/tabrec/internal/coordinator"
	"github.com/hpungsan/tabrec/internal/errors"
	"github.com/hpungsan/tabrec/internal/recording"
)

// bindingName is the page-global function the bridge calls into Go.
const bindingName = "__tabrec_emit"

//go:embed bridge.js
var bridgeJS string

// pageScript is evaluated on every new document: the bridge first, then the
// capture engine when one is configured.
func pageScript(engine string) string {
	if engine == "" {
		return bridgeJS
	}
	return bridgeJS + "\n;" + engine
}

// decodeBridge turns a bridge payload from tab into a notification.
// Lifecycle signals carry no tab id on the wire; the sender is the tab.
func decodeBridge(tab recording.TabID, payload string) (coordinator.Notification, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid bridge payload: %v", err))
	}
	switch env.Type {
	case coordinator.TypeTabActivated:
		return coordinator.TabActivated{TabID: tab}, nil
	case coordinator.TypeTabNavigationComplete:
		return coordinator.TabNavigationComplete{TabID: tab}, nil
	default:
		return coordinator.DecodeNotification([]byte(payload))
	}
}

// pageMessage maps a coordinator command to the window message the capture
// engine listens for.
func pageMessage(cmd coordinator.Command) (string, error) {
	switch cmd {
	case coordinator.CommandStart:
		return "start-recording", nil
	case coordinator.CommandStop:
		return "stop-recording", nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown command %q", cmd))
	}
}
