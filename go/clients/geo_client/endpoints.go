package geo_client

const (
	// BaseURL is the free ip-api.com endpoint; it only serves plain HTTP
	BaseURL = "http://ip-api.com/json/"

	// Only the fields we read, keeps responses small
	fieldsParam = "fields=status,message,countryCode"

	statusSuccess = "success"

	JsonHeader      = "accept"
	JsonContentType = "application/json"
)
