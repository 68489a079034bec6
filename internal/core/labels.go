package core

// Labels represents key-value metadata attached to a forwarded frame.
type Labels map[string]string

// Label naming constants following {scope}.{field} convention.
const (
	LabelServiceInstance = "sle.service_instance"
	LabelResponder       = "sle.responder"
	LabelFrameKind       = "frame.kind" // "tm" or "aos"
	LabelFrameOCF        = "frame.ocf"  // hex-encoded operational control field
	LabelPrivateAnnot    = "sle.private_annotation"
)
