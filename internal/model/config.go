package model

import (
	"net/url"
	"time"
)

// GeoInfo describes geographical / provider information associated with an IP.
type GeoInfo struct {
	Country string
	City    string
	ISP     string
}

func (g GeoInfo) Empty() bool {
	return g.Country == "" && g.City == "" && g.ISP == ""
}

type IPResolver interface {
	Lookup(ip string) (GeoInfo, error)
}

type Config struct {
	InputFile    string
	Target       string   // echo endpoint returning {"origin": "<ip>"}
	TargetURL    *url.URL // parsed Target, set by config.Validate
	Timeout      time.Duration
	Concurrency  int // 0 means one goroutine per proxy, all in flight
	Retries      int // attempts per proxy, min 1
	Strict       bool
	OutputFile   string
	OutputFormat string // json, csv or txt
	Table        bool
	GeoIPCity    string
	GeoIPASN     string
	DBPath       string
	DetectRealIP bool
	InsecureTLS  bool
	Verbose      bool
	LogFormat    string // json or text
}
