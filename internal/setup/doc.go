// Package setup retrieves the building description from the setup service.
//
// The feed is a JSON array of loosely typed entity records: rooms
// ({"type":"Room","title":...}), building records carrying a nested "rooms"
// array, and devices ({"title":...,"type":"Lamp","roomId":...}). Record exposes
// presence-checked accessors over the raw JSON; interpretation belongs to the
// room package.
//
// A transport failure, a non-2xx answer or a body that is not a JSON array or
// object is fatal: the service cannot start without a building description.
package setup
