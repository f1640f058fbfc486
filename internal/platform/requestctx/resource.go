package requestctx

import "strings"

const idPlaceholder = "{id}"

// orderActions are fixed segments under /orders that never carry an id.
var orderActions = map[string]bool{
	"move":           true,
	"cancel-request": true,
	"lookup":         true,
	"upload-url":     true,
}

// orderRequestCollections hold cancellation and return requests or archived returns addressed by their own id.
var orderRequestCollections = map[string]bool{
	"cancellation-request": true,
	"return-request":       true,
	"returned":             true,
}

// ResolveResource maps a request path onto its route template and the order, request or
// notification id it addresses. Paths outside /orders and /notifications keep their segments.
func ResolveResource(path string) Resource {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return Resource{Route: "/"}
	}
	segs := strings.Split(trimmed, "/")
	var res Resource
	for i := 0; i+1 < len(segs); i++ {
		if segs[i+1] == "" {
			continue
		}
		if segs[i] == "orders" {
			resolveOrderSegments(segs[i+1:], &res)
			break
		}
		if segs[i] == "notifications" {
			res.NotificationID = segs[i+1]
			segs[i+1] = idPlaceholder
			break
		}
	}
	res.Route = "/" + strings.Join(segs, "/")
	return res
}

func resolveOrderSegments(segs []string, res *Resource) {
	head := segs[0]
	switch {
	case orderActions[head]:
	case orderRequestCollections[head]:
		if len(segs) > 1 && segs[1] != "" && !orderActions[segs[1]] {
			res.RequestID = segs[1]
			segs[1] = idPlaceholder
		}
	default:
		res.OrderID = head
		segs[0] = idPlaceholder
	}
}
