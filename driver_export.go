package moolticuted

import (
	"github.com/raoulh/moolticuted/internal/export"
	"github.com/raoulh/moolticuted/internal/job"
	"github.com/raoulh/moolticuted/internal/mmm"
	"github.com/raoulh/moolticuted/internal/protocol"
)

const (
	stExportSerial  = "export_serial"
	stExportVersion = "export_version"
)

func deviceInfoSteps() []job.Step {
	return []job.Step{
		{
			Name: "get_serial",
			Build: func(st job.State) (protocol.Command, []byte, error) {
				return protocol.CmdGetSerial, nil, nil
			},
			Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
				if !ok || msg.Status != protocol.StatusOK {
					return job.StopFailure
				}
				st[stExportSerial] = msg.SerialNumber
				return job.Continue
			},
		},
		{
			Name: "get_version",
			Build: func(st job.State) (protocol.Command, []byte, error) {
				return protocol.CmdGetVersion, nil, nil
			},
			Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
				if !ok || msg.Status != protocol.StatusOK {
					return job.StopFailure
				}
				st[stExportVersion] = string(msg.Payload[1:])
				return job.StopSuccess
			},
		},
	}
}

// Export serializes the full node graph into a C7 payload (spec.md §6's
// export(encrypted?)). It scans the flash (including data nodes) with a
// read-only MMM visit, fetches the device identity fields FromGraph
// stamps onto the payload, then seals the result under encryptionName
// unless that name is empty or "none".
func (d *Driver) Export(reqID, encryptionName string, cb func(fileBytes []byte, err error)) {
	d.run(reqID, deviceInfoSteps(),
		func(infoState job.State) {
			d.StartMMM(reqID, true, nil, func(_ mmm.Report, err error) {
				if err != nil {
					cb(nil, err)
					return
				}
				g := d.mmm.Authoritative()
				d.ExitMMM(reqID, false, func(err error) {
					if err != nil {
						cb(nil, err)
						return
					}
					serial, _ := infoState[stExportSerial].(uint32)
					version, _ := infoState[stExportVersion].(string)
					schema := export.SchemaClassic
					if d.proto.Capabilities().Has(protocol.CapWebAuthn) {
						schema = export.SchemaBLE
					}
					meta := export.Metadata{
						DeviceVersion: version,
						SerialNumber:  serial,
						IsBLE:         d.proto.Name() == "ble",
					}
					payload, err := export.FromGraph(g, d.proto, schema, meta)
					if err != nil {
						cb(nil, err)
						return
					}
					raw, err := export.MarshalArray(payload)
					if err != nil {
						cb(nil, err)
						return
					}
					if encryptionName == "" || encryptionName == "none" {
						cb(raw, nil)
						return
					}
					envelope, err := export.Seal(raw, encryptionName)
					cb(envelope, err)
				})
			})
		},
		func(err error) { cb(nil, err) },
	)
}

// Import merges fileBytes (optionally sealed under encryptionName) into
// the device's credential and data graphs (spec.md §6's import(file,
// no_delete?)). noDelete is accepted for symmetry with the client surface
// — this daemon's merge is already additive/union, per spec.md §4.7, so
// there is nothing destructive to suppress.
func (d *Driver) Import(reqID string, fileBytes []byte, noDelete bool, encryptionName string, cb func(error)) {
	raw := fileBytes
	if encryptionName != "" && encryptionName != "none" {
		plain, err := export.Open(fileBytes, encryptionName)
		if err != nil {
			cb(err)
			return
		}
		raw = plain
	}
	payload, err := export.UnmarshalArray(raw)
	if err != nil {
		cb(err)
		return
	}

	d.editAndLeave(reqID, func(sess *mmm.Session) error {
		incoming, err := export.ToGraph(payload, d.proto.MaxFavorites(), d.proto)
		if err != nil {
			return err
		}
		if err := export.MergeCredentials(sess, incoming); err != nil {
			return err
		}
		return export.MergeData(sess, incoming)
	}, cb)
}
