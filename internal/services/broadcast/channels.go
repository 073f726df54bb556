package broadcast

import "strings"

const (
	GlobalChannel = "global"

	userPrefix     = "user:"
	rolePrefix     = "role:"
	shipmentPrefix = "shipment:"
)

func UserChannel(userID string) string { return userPrefix + userID }

func RoleChannel(role string) string { return rolePrefix + role }

func ShipmentChannel(shipmentID string) string { return shipmentPrefix + shipmentID }

// ValidChannel reports whether name is one of the known channel shapes.
func ValidChannel(name string) bool {
	if name == GlobalChannel {
		return true
	}
	for _, p := range []string{userPrefix, rolePrefix, shipmentPrefix} {
		if strings.HasPrefix(name, p) && len(name) > len(p) {
			return true
		}
	}
	return false
}

// UserFromChannel returns the user id of a user channel.
func UserFromChannel(name string) (string, bool) {
	id, ok := strings.CutPrefix(name, userPrefix)
	return id, ok && id != ""
}
