package instance

import "github.com/angelmondragon/packfinderz-pos/pkg/env"

// ID identifies the running process in logs, preferring the platform's dyno name.
func ID(fallback string) string {
	return env.First(fallback, "DYNO", "WORKER_ID")
}
