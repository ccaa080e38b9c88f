// Package metrics exposes the prometheus collectors tracking vault activity.
package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// VaultMetrics groups the collectors recorded by the accounting engine.
type VaultMetrics struct {
	deposits          prometheus.Counter
	withdrawals       prometheus.Counter
	redemptions       prometheus.Counter
	rejected          *prometheus.CounterVec
	staleQuotes       prometheus.Counter
	sharesOutstanding prometheus.Gauge
	reserveUnits      prometheus.Gauge
}

var (
	vaultOnce     sync.Once
	vaultRegistry *VaultMetrics
)

// Vault returns the process-wide vault metrics registry.
func Vault() *VaultMetrics {
	vaultOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_deposits_total",
				Help: "Count of completed deposits.",
			}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_withdrawals_total",
				Help: "Count of completed asset-denominated withdrawals.",
			}),
			redemptions: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_redemptions_total",
				Help: "Count of completed share-denominated redemptions.",
			}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_operations_rejected_total",
				Help: "Count of rejected operations by reason.",
			}, []string{"reason"}),
			staleQuotes: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_stale_quotes_total",
				Help: "Count of oracle quotes rejected for staleness.",
			}),
			sharesOutstanding: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_shares_outstanding",
				Help: "Total fungible shares currently issued.",
			}),
			reserveUnits: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_reserve_units",
				Help: "Reserve asset units held in vault custody.",
			}),
		}
		prometheus.MustRegister(
			vaultRegistry.deposits,
			vaultRegistry.withdrawals,
			vaultRegistry.redemptions,
			vaultRegistry.rejected,
			vaultRegistry.staleQuotes,
			vaultRegistry.sharesOutstanding,
			vaultRegistry.reserveUnits,
		)
	})
	return vaultRegistry
}

// DepositObserved records a completed deposit.
func (m *VaultMetrics) DepositObserved() {
	if m == nil {
		return
	}
	m.deposits.Inc()
}

// WithdrawObserved records a completed asset-denominated withdrawal.
func (m *VaultMetrics) WithdrawObserved() {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
}

// RedeemObserved records a completed share-denominated redemption.
func (m *VaultMetrics) RedeemObserved() {
	if m == nil {
		return
	}
	m.redemptions.Inc()
}

// OperationRejected records a rejected operation with the supplied reason
// label.
func (m *VaultMetrics) OperationRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// StaleQuoteObserved records an oracle quote rejected for staleness.
func (m *VaultMetrics) StaleQuoteObserved() {
	if m == nil {
		return
	}
	m.staleQuotes.Inc()
}

// SetSharesOutstanding updates the issued share gauge. Values beyond float64
// precision are approximated, which is acceptable for operational dashboards.
func (m *VaultMetrics) SetSharesOutstanding(total *big.Int) {
	if m == nil || total == nil {
		return
	}
	value, _ := new(big.Float).SetInt(total).Float64()
	m.sharesOutstanding.Set(value)
}

// SetReserveUnits updates the custody reserve gauge.
func (m *VaultMetrics) SetReserveUnits(total *big.Int) {
	if m == nil || total == nil {
		return
	}
	value, _ := new(big.Float).SetInt(total).Float64()
	m.reserveUnits.Set(value)
}
