package config

import "time"

// Application constants
const (
	AppName    = "spotcrawl"
	AppVersion = "1.0.0"

	// Surface resolution
	SurfaceAttempts   = 5
	SurfaceBackoff    = 2 * time.Second
	SurfaceSettle     = time.Second
	SurfaceMountDelay = 3 * time.Second

	// Menu expansion
	ExpandAttempts     = 2
	ExpandObservation  = 1500 * time.Millisecond
	ExpandPollInterval = 250 * time.Millisecond
	SidebarReadyWait   = 30 * time.Second

	// Network quiescence
	IdleQuietPeriod = 500 * time.Millisecond
	IdleMaxWait     = 15 * time.Second
)
