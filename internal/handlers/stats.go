package handlers

import (
	"net/http"
	"strconv"
	"time"
)

var startedAt = time.Now()

// StatsResponse describes the relay state of this instance.
type StatsResponse struct {
	Instance            string `json:"instance"`
	OpenConnections     int64  `json:"open_connections"`
	ActiveChannels      int    `json:"active_channels"`
	BrokerSubscriptions int    `json:"broker_subscriptions"`
	Started             string `json:"started"`
}

// Stats returns live relay statistics for this instance.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	var resp StatsResponse
	if h.relay.Gateway != nil {
		resp.OpenConnections = h.relay.Gateway.OpenConnections()
	}
	if h.relay.Registry != nil {
		resp.ActiveChannels = h.relay.Registry.Channels()
	}
	if h.relay.Bridge != nil {
		resp.Instance = h.relay.Bridge.Instance()
		resp.BrokerSubscriptions = h.relay.Bridge.Subscriptions()
	}
	resp.Started = formatTimeAgo(startedAt)

	h.JSON(w, http.StatusOK, resp)
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	default:
		return plural(int(diff.Hours()/24), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
