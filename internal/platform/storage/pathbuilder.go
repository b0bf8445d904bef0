package storage

import (
	"fmt"
	"strings"
)

const referenceScheme = "gs://"

// VehicleImagePath composes the object key for an uploaded vehicle image.
func VehicleImagePath(vehicleID, uploadID, fileName string) (string, error) {
	vehicleID, err := validateSegment("vehicleID", vehicleID)
	if err != nil {
		return "", err
	}
	uploadID, err = validateSegment("uploadID", uploadID)
	if err != nil {
		return "", err
	}
	fileName, err = validateSegment("fileName", fileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("vehicles/%s/images/%s/%s", vehicleID, uploadID, fileName), nil
}

// Reference renders the gs:// form stored on vehicles.
func Reference(bucket, object string) string {
	return referenceScheme + bucket + "/" + object
}

// ParseReference splits a gs://bucket/object reference.
func ParseReference(ref string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(ref), referenceScheme)
	if !ok {
		return "", "", fmt.Errorf("storage: %q is not a gs:// reference", ref)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("storage: %q must name a bucket and an object", ref)
	}
	if strings.Contains(object, "..") {
		return "", "", fmt.Errorf("storage: %q contains invalid traversal sequence", ref)
	}
	return bucket, object, nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
