package changes

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func u32(v uint32) *uint32 { return &v }
func u64(v uint64) *uint64 { return &v }

func TestEntryDiff_JSON(t *testing.T) {
	from, _ := ParseHash(strings.Repeat("0", 64))
	to, _ := ParseHash(strings.Repeat("f", 64))

	tests := []struct {
		name string
		in   EntryDiff
		want string
	}{
		{
			name: "file changed",
			in:   FileChanged{HashChange: NewChange(from, to)},
			want: `{"FileChanged":{"hash_change":{"from":"` + strings.Repeat("0", 64) + `","to":"` + strings.Repeat("f", 64) + `"}}}`,
		},
		{
			name: "symlink changed",
			in:   SymlinkChanged{PathChange: NewChange("old/target", "new/target")},
			want: `{"SymlinkChanged":{"path_change":{"from":"old/target","to":"new/target"}}}`,
		},
		{
			name: "type change",
			in:   TypeChange{From: "file", To: "directory"},
			want: `{"TypeChange":{"from":"file","to":"directory"}}`,
		},
		{
			name: "other change",
			in:   OtherChange{},
			want: `"OtherChange"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.in)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.want {
				t.Fatalf("Marshal() = %s, want %s", data, tt.want)
			}

			back, err := DecodeEntryDiff(data)
			if err != nil {
				t.Fatalf("DecodeEntryDiff() error = %v", err)
			}
			if !reflect.DeepEqual(back, tt.in) {
				t.Errorf("DecodeEntryDiff() = %#v, want %#v", back, tt.in)
			}
		})
	}
}

func TestDecodeEntryDiff_Rejects(t *testing.T) {
	inputs := []string{
		`"FileChanged"`,
		`{"Renamed":{}}`,
		`{"FileChanged":{"hash_change":{"from":"abc","to":"def"}}}`,
		`{"FileChanged":{}}`,
		`{"FileChanged":null}`,
		`{"FileChanged":{"hash_change":{"from":null,"to":null}}}`,
		`{"SymlinkChanged":{"path_change":{"from":"a"}}}`,
		`{"TypeChange":{"from":null,"to":"file"}}`,
		`{"OtherChange":123}`,
		`{"OtherChange":{}}`,
		`42`,
	}
	for _, in := range inputs {
		if d, err := DecodeEntryDiff([]byte(in)); err == nil {
			t.Errorf("DecodeEntryDiff(%s) = %#v, want error", in, d)
		}
	}
}

func TestDecodeEntryDiff_UnitObjectForm(t *testing.T) {
	d, err := DecodeEntryDiff([]byte(`{"OtherChange":null}`))
	if err != nil {
		t.Fatalf("DecodeEntryDiff() error = %v", err)
	}
	if _, ok := d.(OtherChange); !ok {
		t.Errorf("DecodeEntryDiff() = %#v, want OtherChange", d)
	}
}

func TestNamedStreamType_UnmarshalRejects(t *testing.T) {
	inputs := []string{
		`{"ReparseData":{"name":"x"}}`,
		`{"DosName":1}`,
		`{"AlternateDataStream":{}}`,
		`{"AlternateDataStream":{"name":null}}`,
		`{"AlternateDataStream":null}`,
		`"AlternateDataStream"`,
	}
	for _, in := range inputs {
		var s NamedStreamType
		if err := json.Unmarshal([]byte(in), &s); err == nil {
			t.Errorf("Unmarshal(%s) = %v, want error", in, s)
		}
	}

	var s NamedStreamType
	if err := json.Unmarshal([]byte(`{"ObjectId":null}`), &s); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if s != ObjectID {
		t.Errorf("Unmarshal() = %v, want %v", s, ObjectID)
	}
}

func TestNamedStreamType_JSON(t *testing.T) {
	tests := []struct {
		in   NamedStreamType
		want string
	}{
		{in: ReparseData, want: `"ReparseData"`},
		{in: AccessControlList, want: `"AccessControlList"`},
		{in: DosName, want: `"DosName"`},
		{in: ObjectID, want: `"ObjectId"`},
		{in: EncryptedFileSystemInfo, want: `"EncryptedFileSystemInfo"`},
		{in: ExtendedAttributes, want: `"ExtendedAttributes"`},
		{in: AlternateDataStream("Zone.Identifier"), want: `{"AlternateDataStream":{"name":"Zone.Identifier"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			data, err := json.Marshal(tt.in)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.want {
				t.Fatalf("Marshal() = %s, want %s", data, tt.want)
			}

			var back NamedStreamType
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if back != tt.in {
				t.Errorf("Unmarshal() = %v, want %v", back, tt.in)
			}
		})
	}

	var s NamedStreamType
	if err := json.Unmarshal([]byte(`"Resource"`), &s); err == nil {
		t.Error("Unmarshal(unknown kind) expected error")
	}
	if _, err := json.Marshal(NamedStreamType{}); err == nil {
		t.Error("Marshal(zero NamedStreamType) expected error")
	}
}

func TestMetadataChange_JSON(t *testing.T) {
	tests := []struct {
		name string
		in   MetadataChange
		want string
	}{
		{name: "size", in: SizeChange{From: 10, To: 20}, want: `{"Size":{"from":10,"to":20}}`},
		{name: "ntfs attributes", in: NtfsAttributesChange{From: u32(32), To: u32(34)}, want: `{"NtfsAttributes":{"from":32,"to":34}}`},
		{name: "unix permissions", in: UnixPermissionsChange{From: u32(0o644), To: u32(0o600)}, want: `{"UnixPermissions":{"from":420,"to":384}}`},
		{name: "nlink", in: NlinkChange{From: u64(1), To: u64(2)}, want: `{"Nlink":{"from":1,"to":2}}`},
		{name: "uid absent", in: UidChange{From: nil, To: u32(1000)}, want: `{"Uid":{"from":null,"to":1000}}`},
		{name: "gid", in: GidChange{From: u32(0), To: u32(100)}, want: `{"Gid":{"from":0,"to":100}}`},
		{
			name: "alternate data stream",
			in: NamedStreamChange{
				Stream: AlternateDataStream("meta"),
				Change: NewChange[[]byte](nil, []byte{1, 2, 255}),
			},
			want: `{"NamedStream":[{"AlternateDataStream":{"name":"meta"}},{"from":null,"to":[1,2,255]}]}`,
		},
		{
			name: "emptied stream",
			in: NamedStreamChange{
				Stream: ExtendedAttributes,
				Change: NewChange([]byte{7}, []byte{}),
			},
			want: `{"NamedStream":["ExtendedAttributes",{"from":[7],"to":[]}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.in)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.want {
				t.Fatalf("Marshal() = %s, want %s", data, tt.want)
			}

			back, err := DecodeMetadataChange(data)
			if err != nil {
				t.Fatalf("DecodeMetadataChange() error = %v", err)
			}
			if !reflect.DeepEqual(back, tt.in) {
				t.Errorf("DecodeMetadataChange() = %#v, want %#v", back, tt.in)
			}
		})
	}
}

func TestDecodeMetadataChange_Rejects(t *testing.T) {
	inputs := []string{
		`"Size"`,
		`{"Mode":{"from":1,"to":2}}`,
		`{"Size":{"from":-1,"to":2}}`,
		`{"NamedStream":["DosName"]}`,
		`{"NamedStream":["DosName",{"from":[256],"to":null}]}`,
		`{"NamedStream":["DosName",null]}`,
		`{"NamedStream":["DosName",{"from":null}]}`,
		`{"Size":{"from":1}}`,
		`{"Size":{"from":null,"to":2}}`,
		`{"Size":null}`,
		`{"Uid":{"to":1000}}`,
	}
	for _, in := range inputs {
		if c, err := DecodeMetadataChange([]byte(in)); err == nil {
			t.Errorf("DecodeMetadataChange(%s) = %#v, want error", in, c)
		}
	}
}

func TestMetaEntryDiff_JSON(t *testing.T) {
	const emptyInfo = `{"changes":[],"inode":{"Same":null},"created":{"Same":null},"modified":{"Same":null},"accessed":{"Same":null},"inode_modified":{"Same":null}}`

	tests := []struct {
		name string
		in   MetaEntryDiff[Timestamp]
		want string
	}{
		{name: "added", in: Added(MetadataInfo[Timestamp]{}), want: `{"Added":` + emptyInfo + `}`},
		{name: "deleted", in: Deleted(MetadataInfo[Timestamp]{}), want: `{"Deleted":` + emptyInfo + `}`},
		{name: "meta only", in: MetaOnlyChange(MetadataInfo[Timestamp]{}), want: `{"MetaOnlyChange":` + emptyInfo + `}`},
		{
			name: "entry change",
			in:   EntryChange(OtherChange{}, MetadataInfo[Timestamp]{}),
			want: `{"EntryChange":["OtherChange",` + emptyInfo + `]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.in)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.want {
				t.Fatalf("Marshal() = %s, want %s", data, tt.want)
			}

			var back MetaEntryDiff[Timestamp]
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !reflect.DeepEqual(back, tt.in) {
				t.Errorf("Unmarshal() = %#v, want %#v", back, tt.in)
			}
		})
	}

	if _, err := json.Marshal(EntryChange[Timestamp](nil, MetadataInfo[Timestamp]{})); err == nil {
		t.Error("Marshal(EntryChange without entry) expected error")
	}
	var d MetaEntryDiff[Timestamp]
	if err := json.Unmarshal([]byte(`{"EntryChange":["OtherChange"]}`), &d); err == nil {
		t.Error("Unmarshal(EntryChange with one field) expected error")
	}
}

func TestMetaEntryDiff_UnmarshalRejects(t *testing.T) {
	const same = `{"Same":null}`
	info := func(omit string) string {
		fields := []string{
			`"changes":[]`,
			`"inode":` + same,
			`"created":` + same,
			`"modified":` + same,
			`"accessed":` + same,
			`"inode_modified":` + same,
		}
		var kept []string
		for _, f := range fields {
			if !strings.HasPrefix(f, `"`+omit+`"`) {
				kept = append(kept, f)
			}
		}
		return "{" + strings.Join(kept, ",") + "}"
	}

	tests := []struct {
		name string
		in   string
	}{
		{name: "empty info", in: `{"Added":{}}`},
		{name: "null info", in: `{"Deleted":null}`},
		{name: "missing changes", in: `{"Added":` + info("changes") + `}`},
		{name: "missing inode", in: `{"Added":` + info("inode") + `}`},
		{name: "missing inode_modified", in: `{"MetaOnlyChange":` + info("inode_modified") + `}`},
		{name: "null changes", in: `{"Added":{"changes":null,"inode":{"Same":null},"created":{"Same":null},"modified":{"Same":null},"accessed":{"Same":null},"inode_modified":{"Same":null}}}`},
		{name: "bare Same", in: `{"Added":{"changes":[],"inode":"Same","created":{"Same":null},"modified":{"Same":null},"accessed":{"Same":null},"inode_modified":{"Same":null}}}`},
		{name: "unit entry with payload", in: `{"EntryChange":[{"OtherChange":123},` + info("") + `]}`},
		{name: "entry change with empty info", in: `{"EntryChange":["OtherChange",{}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d MetaEntryDiff[Timestamp]
			if err := json.Unmarshal([]byte(tt.in), &d); err == nil {
				t.Errorf("Unmarshal(%s) = %#v, want error", tt.in, d)
			}
		})
	}

	var d MetaEntryDiff[Timestamp]
	if err := json.Unmarshal([]byte(`{"Added":`+info("")+`}`), &d); err != nil {
		t.Fatalf("Unmarshal(complete info) error = %v", err)
	}
}

func TestMetaEntryDiff_Accessors(t *testing.T) {
	info := MetadataInfo[Timestamp]{Changes: []MetadataChange{SizeChange{From: 1, To: 2}}}

	d := EntryChange(TypeChange{From: "file", To: "symlink"}, info)
	entry, ok := d.Entry()
	if !ok || entry != (TypeChange{From: "file", To: "symlink"}) {
		t.Errorf("Entry() = %v, %v", entry, ok)
	}
	if !reflect.DeepEqual(d.MetaInfo(), info) {
		t.Errorf("MetaInfo() = %+v, want %+v", d.MetaInfo(), info)
	}

	for _, other := range []MetaEntryDiff[Timestamp]{Added(info), Deleted(info), MetaOnlyChange(info)} {
		if _, ok := other.Entry(); ok {
			t.Errorf("%v.Entry() ok = true", other.Kind())
		}
		if !reflect.DeepEqual(other.MetaInfo(), info) {
			t.Errorf("%v.MetaInfo() = %+v, want %+v", other.Kind(), other.MetaInfo(), info)
		}
	}
}

func TestMetadataInfo_PreservesDuplicates(t *testing.T) {
	info := MetadataInfo[Timestamp]{
		Changes: []MetadataChange{
			SizeChange{From: 1, To: 2},
			UidChange{From: u32(1), To: u32(2)},
			SizeChange{From: 1, To: 2},
		},
		Inode: Changed(u64(10), u64(11)),
	}

	data, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var back MetadataInfo[Timestamp]
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !reflect.DeepEqual(back, info) {
		t.Errorf("Unmarshal() = %+v, want %+v", back, info)
	}

	info.Changes = append(info.Changes, nil)
	if _, err := json.Marshal(info); err == nil {
		t.Error("Marshal() with nil change expected error")
	}
}
