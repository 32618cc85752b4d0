/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the shell
host, tracking HTTP requests, window/view session activity, download
registry activity, and system metrics.

# Features

- HTTP request metrics (latency, throughput, size)
- Window and view session metrics
- Download lifecycle and scan verdict metrics
- WebSocket connection metrics
- System metrics (uptime)

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record custom metrics
	metrics.SetViewsActive(5)
	metrics.IncDownloadsTotal()

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
