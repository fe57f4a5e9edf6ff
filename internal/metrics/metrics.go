package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Redemptions counts redemption attempts by final outcome.
var Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rollcall_redemptions_total",
	Help: "Redemption attempts by outcome.",
}, []string{"outcome"})

// TokensIssued counts minted presence tokens.
var TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
	Name: "rollcall_tokens_issued_total",
	Help: "Presence tokens minted for occurrences.",
})
