package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	productListings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_product_listings_total",
			Help: "Product listings served, by source",
		},
		[]string{"source"},
	)

	ordersPlaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_orders_total",
			Help: "Checkout attempts, by saga outcome",
		},
		[]string{"status"},
	)
)
