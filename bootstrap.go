package authcore

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// deviceFingerprint is the device-id minting payload. Field names are the
// backend's contract; absent values are sent as empty strings the way the
// web client does.
type deviceFingerprint struct {
	IP                     string `json:"ip"`
	IspName                string `json:"isp_name"`
	IsUsedVPN              int    `json:"is_used_vpn"`
	PlatformName           string `json:"platform_name"`
	PlatformVersionCode    string `json:"platform_version_code"`
	PlatformVersionName    string `json:"platform_version_name"`
	OSName                 string `json:"os_name"`
	OSVersion              string `json:"os_version"`
	IsRooted               int    `json:"is_rooted"`
	DeviceUUID             string `json:"device_uuid"`
	DeviceBrand            string `json:"device_brand"`
	DeviceModel            string `json:"device_model"`
	DeviceLanguage         string `json:"device_language"`
	ScreenDensity          string `json:"screen_density"`
	ScreenResolution       string `json:"screen_resolution"`
	CPU                    string `json:"cpu"`
	Timezone               string `json:"timezone"`
	BrowserName            string `json:"browser_name"`
	Agent                  string `json:"agent"`
	Referrer               string `json:"referrer"`
	UTMSource              string `json:"utm_source"`
	UTMMedium              string `json:"utm_medium"`
	UTMCampaign            string `json:"utm_campaign"`
	FCMToken               string `json:"fcm_token"`
	GoogleAdvertisingID    string `json:"google_advertising_id"`
	GoogleServiceFramework string `json:"google_service_framework"`
}

type deviceIDResponse struct {
	DeviceID string `json:"dg_id"`
}

// BootstrapOptions carries the host-collected values for startup.
type BootstrapOptions struct {
	Device DeviceInfo
	// FCMToken is the push-notification registration token, if the host
	// has one.
	FCMToken string
}

// Bootstrap restores persisted state and ensures the session holds a
// device id. Tokens and profile are hydrated from the stores; when no
// dg_id is stored, the device fingerprint is submitted to the device-id
// endpoint and the minted id committed. A fresh device UUID is generated
// per minting request.
func (e *Engine) Bootstrap(ctx context.Context, opts BootstrapOptions) error {
	if e == nil || e.session == nil {
		return ErrCoreNotReady
	}

	if err := e.session.Hydrate(ctx); err != nil {
		return err
	}
	if e.session.DeviceID() != "" {
		return nil
	}
	if e.cfg.Endpoints.DeviceID == "" {
		return nil
	}

	fp := deviceFingerprint{
		IsUsedVPN:           1,
		PlatformName:        "WEB",
		PlatformVersionName: opts.Device.Browser,
		OSName:              opts.Device.OSName,
		OSVersion:           opts.Device.OSVersion,
		DeviceUUID:          uuid.NewString(),
		DeviceModel:         opts.Device.Model,
		ScreenDensity:       opts.Device.ScreenDensity,
		ScreenResolution:    opts.Device.Resolution,
		BrowserName:         opts.Device.Browser,
		Agent:               opts.Device.Agent,
		Referrer:            opts.Device.Referrer,
		UTMSource:           e.cfg.UTMParams["utm_source"],
		UTMMedium:           e.cfg.UTMParams["utm_medium"],
		UTMCampaign:         e.cfg.UTMParams["utm_campaign"],
		FCMToken:            opts.FCMToken,
	}
	payload, err := json.Marshal(fp)
	if err != nil {
		return err
	}

	res := e.Execute(ctx, Request{
		URL:    e.cfg.Endpoints.DeviceID,
		Method: http.MethodPost,
		Body:   payload,
	}, Policy{})
	if !res.OK() {
		return res.Failure()
	}

	var minted deviceIDResponse
	if err := res.Decode(&minted); err != nil {
		return err
	}
	if minted.DeviceID != "" {
		e.session.SetDeviceID(ctx, minted.DeviceID)
	}
	return nil
}
