// Package domain models hazard observations fused from heterogeneous
// real-time feeds into one schema.
//
// # Feeds
//
// Seven upstream feeds contribute data, each with its own payload shape:
//
//	usgs:      USGS earthquake GeoJSON summary feed. Magnitude is the quake
//	           magnitude; coordinates arrive as [lon, lat, depth].
//	nasa:      NASA FIRMS thermal anomaly detections (wildfire). Magnitude is
//	           the detection brightness in Kelvin; the feed may answer with
//	           CSV or JSON depending on the endpoint.
//	fema:      FEMA disaster declaration summaries. Declarations carry no
//	           point geometry, so events are anchored to state centroids, and
//	           the same records are aggregated into rapid-call clusters keyed
//	           by (state, incident type).
//	sffd:      San Francisco Fire Department calls for service. Magnitude is
//	           the alarm count.
//	social:    geotagged social mentions with a sentiment score in [-1, 1].
//	           Mentions with coordinates double as hotspots and events.
//	kontur:    Kontur multi-hazard risk feed. Its payloads embed a
//	           pre-computed hazard risk used as a scoring hint downstream.
//	reliefweb: ReliefWeb humanitarian reports, folded into the social
//	           mention stream with a keyword-derived sentiment.
//
// The census population-density source produces DensityRegion polygons
// rather than events; regions weight the risk score of any event that
// falls inside them.
//
// # Severity
//
// Each adapter derives a four-level severity (low, moderate, high,
// critical) from its own driving metric before enrichment:
//
//	seismic magnitude:  ≥6.5 critical | ≥5.0 high | ≥3.5 moderate | else low
//	fire brightness:    ≥340 critical | ≥310 high | ≥280 moderate | else low
//	declaration text:   hurricane/pandemic critical | fire/tornado/earthquake
//	                    high | flood/storm moderate | else low
//	sentiment:          ≤-0.6 critical | ≤-0.3 high | ≥0.4 low | else moderate
//
// Adapter-assigned severity is authoritative: the risk engine only fills
// severity in when an adapter left it empty.
//
// # IDs
//
// Event IDs are source-prefixed and derived from the upstream record's
// natural key (quake id, disaster number, call number), so re-ingesting
// the same record upserts instead of duplicating. Records with no natural
// key get a random suffix at persist time.
package domain
