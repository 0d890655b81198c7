// Package receipt implements persistence for the installation Receipt.
//
// The FileRepository stores and loads the receipt as YAML under the state
// directory. A run reads it to detect an existing installation, writes it as
// its last transactional step and uninstall reverses what it lists.
package receipt
