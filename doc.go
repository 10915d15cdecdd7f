// Package ddpush periodically exports an in-process table of named integer
// metrics to a Datadog-compatible series endpoint.
//
// Each export cycle walks the registry once, encodes every entry into a
// single JSON payload and POSTs it to the destination:
//
//	{"series":[{"metric":"app.requests","points":[[1700000000,42]],"type":"gauge","host":"web-1"}]}
//
// Counters registered with WithResetAfterPush are restored to their initial
// value after they are read for export. Delivery is best effort: failures are
// logged, the payload is dropped and the host process is never affected.
//
// Basic usage:
//
//	config := ddpush.DefaultConfig()
//	config.Destinations = []string{"https://app.datadoghq.com/api/v1/series?api_key=KEY"}
//	config.Prefix = "myapp."
//
//	if err := ddpush.Init(config); err != nil {
//	  log.Fatal(err)
//	}
//	defer ddpush.Shutdown()
//
//	ddpush.RegisterCounter("requests", ddpush.WithResetAfterPush())
//	ddpush.IncrementCounter("requests")
package ddpush
