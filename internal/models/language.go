package models

// Language describes one supported execution language and the defaults a
// fresh workspace gets for it
type Language struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Extension   string `yaml:"extension" json:"extension"`
	DefaultFile string `yaml:"default_file" json:"default_file"`
	// Attachments marks languages whose runs may carry binary attachments
	// (JAR archives for java)
	Attachments bool `yaml:"attachments" json:"attachments"`
}
