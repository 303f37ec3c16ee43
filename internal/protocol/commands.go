package protocol

// Command is one of the operations the device firmware understands. Values
// are assigned a stable, contiguous encoding by this daemon; the wire
// encoding of a Command within a frame is entirely internal to a Protocol
// implementation (classic and BLE historically disagreed on code points for
// the same operation), so callers outside this package never compare a
// Command against a literal byte.
type Command uint16

const (
	CmdPing Command = iota
	CmdGetStatus
	CmdSetContext
	CmdGetDeviceName
	CmdGetSerial
	CmdGetVersion

	// Node / flash access.
	CmdReadFlashNode
	CmdWriteFlashNode
	CmdDeleteFlashNode
	CmdGetFavorite
	CmdSetFavorite
	CmdGetStartNodes
	CmdSetStartNodes
	CmdGetCTRValue
	CmdGetCPZCTRValues
	CmdSetCTRAndCPZCTRValues
	CmdAddUnknownCard
	CmdGetFreeAddresses
	CmdUpdateChangeNumbers

	// Credentials and data over an active context.
	CmdGetLogin
	CmdGetPassword
	CmdSetPassword
	CmdGetDataNode
	CmdSetDataNode

	// Management-mode session control.
	CmdStartMemoryManagement
	CmdEndMemoryManagement
	CmdMMMWriteFlashNode

	// Files cache (C8).
	CmdGetFilesCacheList
	CmdAddFileToCache
	CmdUpdateFileInCache
	CmdRemoveFileFromCache
	CmdStartFileUpload
	CmdFileUploadChunk
	CmdEndFileUpload

	// Import/export envelope (C7).
	CmdExportData
	CmdImportData

	// WebAuthn node lists, gated behind Capabilities.WebAuthn.
	CmdGetWebAuthnLoginNode
	CmdSetWebAuthnLoginNode

	// Device-wide operations with no active context.
	CmdLockDevice
	CmdResetCard
	CmdGetRandomNumbers
	CmdGetAvailableUsers
	CmdGetCurrentCardCPZ

	cmdCount
)

// String names commands for logging; never fed back into the wire protocol.
func (c Command) String() string {
	names := [cmdCount]string{
		CmdPing:                  "ping",
		CmdGetStatus:             "get_status",
		CmdSetContext:            "set_context",
		CmdGetDeviceName:         "get_device_name",
		CmdGetSerial:             "get_serial",
		CmdGetVersion:            "get_version",
		CmdReadFlashNode:         "read_flash_node",
		CmdWriteFlashNode:        "write_flash_node",
		CmdDeleteFlashNode:       "delete_flash_node",
		CmdGetFavorite:           "get_favorite",
		CmdSetFavorite:           "set_favorite",
		CmdGetStartNodes:         "get_start_nodes",
		CmdSetStartNodes:         "set_start_nodes",
		CmdGetCTRValue:           "get_ctr_value",
		CmdGetCPZCTRValues:       "get_cpz_ctr_values",
		CmdSetCTRAndCPZCTRValues: "set_ctr_and_cpz_ctr_values",
		CmdAddUnknownCard:        "add_unknown_card",
		CmdGetFreeAddresses:      "get_free_addresses",
		CmdUpdateChangeNumbers:   "update_change_numbers",
		CmdGetLogin:              "get_login",
		CmdGetPassword:           "get_password",
		CmdSetPassword:           "set_password",
		CmdGetDataNode:           "get_data_node",
		CmdSetDataNode:           "set_data_node",
		CmdStartMemoryManagement: "start_memory_management",
		CmdEndMemoryManagement:   "end_memory_management",
		CmdMMMWriteFlashNode:     "mmm_write_flash_node",
		CmdGetFilesCacheList:     "get_files_cache_list",
		CmdAddFileToCache:        "add_file_to_cache",
		CmdUpdateFileInCache:     "update_file_in_cache",
		CmdRemoveFileFromCache:   "remove_file_from_cache",
		CmdStartFileUpload:       "start_file_upload",
		CmdFileUploadChunk:       "file_upload_chunk",
		CmdEndFileUpload:         "end_file_upload",
		CmdExportData:            "export_data",
		CmdImportData:            "import_data",
		CmdGetWebAuthnLoginNode:  "get_webauthn_login_node",
		CmdSetWebAuthnLoginNode:  "set_webauthn_login_node",
		CmdLockDevice:            "lock_device",
		CmdResetCard:             "reset_card",
		CmdGetRandomNumbers:      "get_random_numbers",
		CmdGetAvailableUsers:     "get_available_users",
		CmdGetCurrentCardCPZ:     "get_current_card_cpz",
	}
	if int(c) < 0 || c >= cmdCount {
		return "unknown_command"
	}
	return names[c]
}
