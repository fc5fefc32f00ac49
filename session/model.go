package session

// Profile is the account profile as served by the profile endpoint. It is
// replaced wholesale on every successful fetch, never patched field by
// field.
type Profile struct {
	ID          int         `json:"id"`
	Nickname    string      `json:"nickname"`
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	DateOfBirth string      `json:"date_of_birth"`
	Gender      string      `json:"gender"`
	Avatar      string      `json:"avatar"`
	Mobile      string      `json:"mobile"`
	Email       string      `json:"email,omitempty"`
	City        string      `json:"city,omitempty"`
	CityID      int         `json:"city_id,omitempty"`
	Province    string      `json:"province,omitempty"`
	IspData     *IspData    `json:"isp_data,omitempty"`
	ActiveSubs  []ActiveSub `json:"active_subs,omitempty"`
	IsOfficial  bool        `json:"is_official,omitempty"`
	LimitAge    *LimitAge   `json:"limit_age,omitempty"`
}

// IspData describes the subscriber's ISP partnership entry, if any.
type IspData struct {
	Name          string `json:"name"`
	Color         string `json:"color"`
	Icon          string `json:"icon,omitempty"`
	Description   string `json:"description"`
	NetNameCustom string `json:"net_name_custom"`
}

// ActiveSub is one active subscription attached to the profile.
type ActiveSub struct {
	ID            int    `json:"id"`
	PurchaseType  int    `json:"purchase_type"`
	ProductTitle  string `json:"product_title"`
	Price         int    `json:"price"`
	CreatedTime   string `json:"created_time"`
	ExpireTime    string `json:"expire_time"`
	DateAdded     string `json:"date_added"`
	ServerTime    string `json:"server_time"`
	AutoRecharge  bool   `json:"auto_recharge"`
	TargetType    int    `json:"target_type"`
	TargetID      int    `json:"target_id"`
	Avatar        string `json:"avatar"`
	Description   string `json:"description"`
	URL           string `json:"url,omitempty"`
}

// LimitAge is the parental age-limit setting attached to a profile or a
// child account.
type LimitAge struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Age   int    `json:"age"`
	Logo  string `json:"logo"`
	IsSet bool   `json:"is_set"`
}
