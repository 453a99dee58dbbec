// Package config loads the bridge settings.
//
// Values come from three layers, later ones winning: built-in defaults
// matching the robot's factory setup, an optional YAML file, and the
// YARBO_* environment variables the bridge has always accepted. A
// deployment that only sets YARBO_ROBOT_SERIAL and YARBO_ROBOT_IP needs
// no file at all.
//
// Load validates the result and reports every problem at once; Parse
// skips validation for tools such as yarbo-discover that only need the
// robot and discovery sections.
//
// Keep cloud passwords and tokens in the environment rather than the file.
//
//	cfg, err := config.Load(os.Getenv("YARBO_CONFIG"))
//	if err != nil {
//	    return err
//	}
//	addr := cfg.BrokerAddress() // "192.168.68.102:8883"
package config
