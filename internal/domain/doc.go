// Package domain models road-traffic observations, the road-centreline network
// they are matched against, and the congestion analysis derived from both.
//
// # Data Source
//
// Live observations come from the JARTIC open-traffic WFS endpoint
// (https://api.jartic-open-traffic.org/geoserver), layer
// t_travospublic_measure_5m. Each feature is a 5-minute measurement at a
// traffic counter and carries, among others:
//
//	道路種別   road type (3 = general national roads)
//	時間コード  time code, YYYYMMDDhhmm as an integer
//	平均速度   mean speed in km/h
//	旅行時間   travel time in seconds
//	リンク長   link length in metres
//
// Time codes:
//
//	The feed publishes with a lag, so a cycle requests the slot that started
//	five minutes ago, floored to a five-minute boundary. At 08:13 the request
//	asks for 08:05 ("202405010805"). See [TimeCodeFor].
//
// Invalid values:
//
//	Speeds outside 0–150 km/h and negative travel times or link lengths are
//	treated as absent (nil), never as zero. Absent values are excluded from
//	every mean and quantile.
//
// # Road Network
//
// Road centrelines come from the MLIT National Land Numerical Information
// (KSJ) road dataset or from the road_segments table. Every [RoadSegment] has
// a unique id and at least two vertices. The network is loaded once, published
// as an immutable snapshot, and replaced wholesale on refresh.
//
// # Congestion Classification
//
// A segment's tier is derived from its mean matched speed:
//
//	speed >= high threshold (30 km/h)    low     free flowing
//	speed >= medium threshold (20 km/h)  medium  slightly congested
//	otherwise                            high    congested
//	no speed                             unknown no data
//
// # Fallback Data
//
// When the live feed is disabled, unreachable, or empty, a cycle runs on
// seeded synthetic observations. The [Result] of every cycle names the source
// it used and why, so consumers never mistake synthetic data for live data.
package domain
