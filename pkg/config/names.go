package config

import "fmt"

// petNames is the pool the default device name is drawn from. The name
// is derived from the MAC address, so an unconfigured device advertises
// a stable, human-tellable identity out of the box.
var petNames = [64]string{
	"Riley", "Kodi", "Blair", "Emery", "Ocean", "Amari", "Kerry", "Marlowe",
	"Talyn", "Kylin", "Salem", "Jessie", "Arden", "Carey", "Emerson", "Kiran",
	"Evyn", "Justice", "Lakota", "Indiana", "Devyn", "Milan", "Teddie", "Lorin",
	"Ivory", "Jae", "Adair", "Linn", "Arie", "Yael", "Sol", "Robbie",
	"Reilly", "Cedar", "Landry", "Sutton", "True", "Armani", "Santana", "Jaime",
	"Peyton", "Camden", "Remy", "Aries", "Harley", "Stevie", "Finley", "Elisha",
	"Jackie", "Casey", "Clair", "Rio", "Shea", "Shay", "Kalani", "Jazz",
	"Rowan", "Rian", "Britt", "Tai", "Maxie", "Ellery", "Dru", "Phoenix",
}

// DefaultDeviceName derives a stable two-word pet name from a device
// MAC address, used until a name is configured over BLE. Only the last
// two bytes feed the lookup; the leading bytes are the vendor prefix
// shared by every unit of a production run. Every possible result fits
// the 16-byte name limit.
func DefaultDeviceName(mac [6]byte) string {
	return fmt.Sprintf("%s-%s", petNames[mac[4]%64], petNames[mac[5]%64])
}
