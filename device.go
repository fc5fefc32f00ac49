package authcore

import "fmt"

// DeviceInfo describes the host device. The login endpoints receive it as
// composed fingerprint strings; collection of the underlying values is the
// host application's job.
type DeviceInfo struct {
	// Platform is the device class sent as device_id: "mobile",
	// "desktop", or "TV".
	Platform string
	// AppName names the embedding application or framework.
	AppName        string
	AppVersion     string
	Vendor         string
	Model          string
	Browser        string
	BrowserVersion string
	OSName         string
	OSVersion      string
	ScreenDensity  string
	Resolution     string
	Agent          string
	Referrer       string
}

// ModelString composes the device_model field the way the web client
// does.
func (d DeviceInfo) ModelString() string {
	return fmt.Sprintf("browser-%s-%s-%s-%s", d.Vendor, d.Model, d.Browser, d.BrowserVersion)
}

// OSString composes the device_os field the way the web client does.
func (d DeviceInfo) OSString() string {
	return fmt.Sprintf("%s-%s-%s", d.AppName, d.OSVersion, d.OSName)
}
