package acmedns

// Account holds the delegated credentials returned by the acme-dns
// /register endpoint. The payload is round-tripped through storage as-is;
// nothing beyond these four fields is assumed.
type Account struct {
	Subdomain  string `json:"subdomain"`  // acme-dns subdomain
	Username   string `json:"username"`   // update API username
	Password   string `json:"password"`   // update API password
	FullDomain string `json:"fulldomain"` // CNAME target for _acme-challenge
}
