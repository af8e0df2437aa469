package entity

import "time"

// LoginSession is one row per successful login in `login_sessions`.
type LoginSession struct {
	ID              string     `db:"id"`
	UserID          int64      `db:"user_id"`
	DeviceModel     string     `db:"device_model"`
	Browser         string     `db:"browser"`
	OperatingSystem string     `db:"operating_system"`
	IPAddress       string     `db:"ip_address"`
	City            string     `db:"city"`
	Country         string     `db:"country"`
	LoginTime       time.Time  `db:"login_time"`
	LogoutTime      *time.Time `db:"logout_time"`
	SessionToken    string     `db:"session_token"`
	IsActive        bool       `db:"is_active"`
}

// View is a session as listed to its owner. The session token itself is
// not exposed; IsCurrent marks the caller's own session.
type View struct {
	ID              string     `json:"id"`
	DeviceModel     string     `json:"device_model"`
	Browser         string     `json:"browser"`
	OperatingSystem string     `json:"operating_system"`
	IPAddress       string     `json:"ip_address"`
	City            string     `json:"city"`
	Country         string     `json:"country"`
	LoginTime       time.Time  `json:"login_time"`
	LogoutTime      *time.Time `json:"logout_time"`
	IsActive        bool       `json:"is_active"`
	IsCurrent       bool       `json:"is_current"`
}

func (s *LoginSession) View(currentToken string) View {
	return View{
		ID:              s.ID,
		DeviceModel:     s.DeviceModel,
		Browser:         s.Browser,
		OperatingSystem: s.OperatingSystem,
		IPAddress:       s.IPAddress,
		City:            s.City,
		Country:         s.Country,
		LoginTime:       s.LoginTime,
		LogoutTime:      s.LogoutTime,
		IsActive:        s.IsActive,
		IsCurrent:       currentToken != "" && s.SessionToken == currentToken,
	}
}

// Client describes the device a login came from.
type Client struct {
	UserAgent string
	IP        string
}

// Device is the classified user agent.
type Device struct {
	Browser         string
	OperatingSystem string
	DeviceModel     string
}
